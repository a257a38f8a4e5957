// Package storage provides the key-value backends behind the run snapshot
// and the history ledger.
package storage

import (
	"context"
	"errors"
	"time"

	"stock-council/observability"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV stores opaque blobs by key. Deleting a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// instrumented records backend latency for every call.
type instrumented struct {
	next    KV
	backend string
	metrics *observability.Metrics
}

// Instrument wraps kv so each call is observed under the given backend label.
func Instrument(kv KV, backend string, metrics *observability.Metrics) KV {
	if metrics == nil {
		return kv
	}
	return &instrumented{next: kv, backend: backend, metrics: metrics}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { i.metrics.RecordStorageDuration(i.backend, "get", time.Since(start)) }()
	return i.next.Get(ctx, key)
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	defer func() { i.metrics.RecordStorageDuration(i.backend, "set", time.Since(start)) }()
	return i.next.Set(ctx, key, value)
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer func() { i.metrics.RecordStorageDuration(i.backend, "delete", time.Since(start)) }()
	return i.next.Delete(ctx, key)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
