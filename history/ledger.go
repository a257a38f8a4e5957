// Package history keeps a bounded list of past and in-progress runs.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"stock-council/models"
	"stock-council/observability"
	"stock-council/storage"
)

// ErrRecordNotFound is returned when no record has the requested id.
var ErrRecordNotFound = errors.New("history record not found")

const (
	DefaultKey     = "stock-council:history"
	DefaultVersion = "1"
	DefaultLimit   = 50
)

// Options are the fixed parameters of a Ledger.
type Options struct {
	Key      string
	Version  string
	Limit    int
	Defaults models.AgentConfigs
}

// Ledger stores history records as one versioned list. It assumes a
// single writer; concurrent writers may lose updates.
type Ledger struct {
	kv       storage.KV
	key      string
	version  string
	limit    int
	defaults models.AgentConfigs
	classify Classifier
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for record ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithClassifier replaces the decision extraction.
func WithClassifier(c Classifier) Option {
	return func(l *Ledger) {
		if c != nil {
			l.classify = c
		}
	}
}

// NewLedger creates a Ledger over kv. Zero fields in opts take the defaults.
func NewLedger(kv storage.KV, opts Options, options ...Option) *Ledger {
	l := &Ledger{
		kv:       kv,
		key:      opts.Key,
		version:  opts.Version,
		limit:    opts.Limit,
		defaults: opts.Defaults.Clone(),
		classify: ClassifyDecision,
		now:      time.Now,
	}
	if l.key == "" {
		l.key = DefaultKey
	}
	if l.version == "" {
		l.version = DefaultVersion
	}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// read returns the stored items in storage order. A stale or unreadable
// ledger is deleted and read as empty.
func (l *Ledger) read(ctx context.Context) ([]models.HistoryRecord, error) {
	data, err := l.kv.Get(ctx, l.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var ledger models.HistoryLedger
	if err := json.Unmarshal(data, &ledger); err != nil {
		observability.Warn("Discarding malformed history ledger", "error", err)
		return nil, l.discard(ctx)
	}
	if ledger.Version != l.version {
		observability.Info("Discarding history ledger with stale version", "version", ledger.Version, "want", l.version)
		return nil, l.discard(ctx)
	}
	return ledger.Items, nil
}

func (l *Ledger) discard(ctx context.Context) error {
	if err := l.kv.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("failed to delete stale history: %w", err)
	}
	return nil
}

func (l *Ledger) write(ctx context.Context, items []models.HistoryRecord) error {
	if items == nil {
		items = []models.HistoryRecord{}
	}
	data, err := json.Marshal(models.HistoryLedger{Version: l.version, Items: items})
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := l.kv.Set(ctx, l.key, data); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// List returns every record, most recent first.
func (l *Ledger) List(ctx context.Context) ([]models.HistoryRecord, error) {
	items, err := l.read(ctx)
	if err != nil {
		return []models.HistoryRecord{}, err
	}
	out := make([]models.HistoryRecord, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

// Record adds state to the ledger. An unfinished record for the same symbol
// is replaced in place; otherwise the new record goes to the front. The list
// is then cut to the configured limit.
func (l *Ledger) Record(ctx context.Context, state models.RunState) (models.HistoryRecord, error) {
	now := l.now()
	ts := now.UnixMilli()
	rec := models.HistoryRecord{
		ID:          fmt.Sprintf("%s-%d", state.StockSymbol, ts),
		StockSymbol: state.StockSymbol,
		Status:      state.Status,
		CurrentStep: state.CurrentStep,
		Timestamp:   ts,
		GMDecision:  l.classify(state.Outputs[models.RoleGeneralManager]),
		Outputs:     models.CopyOutputs(state.Outputs),
	}
	if state.Status == models.StatusCompleted {
		completed := ts
		rec.CompletedAt = &completed
	}

	items, err := l.read(ctx)
	if err != nil {
		return rec, err
	}

	replaced := false
	for i := range items {
		if items[i].StockSymbol == rec.StockSymbol && items[i].Status != models.StatusCompleted {
			items[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		items = append([]models.HistoryRecord{rec}, items...)
	}
	if len(items) > l.limit {
		items = items[:l.limit]
	}

	return rec, l.write(ctx, items)
}

// Delete removes the record with id.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	items, err := l.read(ctx)
	if err != nil {
		return err
	}

	kept := items[:0]
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return l.write(ctx, kept)
}

// ClearAll deletes the whole ledger.
func (l *Ledger) ClearAll(ctx context.Context) error {
	if err := l.kv.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Get returns the record with id.
func (l *Ledger) Get(ctx context.Context, id string) (models.HistoryRecord, error) {
	items, err := l.read(ctx)
	if err != nil {
		return models.HistoryRecord{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// Restore builds a run state from rec. Reference data is dropped because it
// is stale, configs start from a fresh copy of the defaults and credentials
// start empty.
func (l *Ledger) Restore(rec models.HistoryRecord) models.RunState {
	state := models.NewRunState(l.defaults)
	state.Status = rec.Status
	state.CurrentStep = rec.CurrentStep
	state.StockSymbol = rec.StockSymbol
	state.Outputs = models.CopyOutputs(rec.Outputs)
	return state
}
