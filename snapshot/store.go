// Package snapshot persists the current run so it survives a restart.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stock-council/models"
	"stock-council/observability"
	"stock-council/storage"
)

// ErrMalformedSnapshot is returned when the stored blob cannot be decoded.
var ErrMalformedSnapshot = errors.New("malformed run snapshot")

const (
	DefaultKey     = "stock-council:run-state"
	DefaultVersion = "1"
	DefaultExpiry  = 30 * time.Minute
)

// Options are the fixed parameters of a Store.
type Options struct {
	Key      string
	Version  string
	Expiry   time.Duration
	Defaults models.AgentConfigs
}

// Store saves and loads a versioned, expiring snapshot of the run state.
type Store struct {
	kv       storage.KV
	key      string
	version  string
	expiry   time.Duration
	defaults models.AgentConfigs
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over kv. Zero fields in opts take the defaults.
func NewStore(kv storage.KV, opts Options, options ...Option) *Store {
	s := &Store{
		kv:       kv,
		key:      opts.Key,
		version:  opts.Version,
		expiry:   opts.Expiry,
		defaults: opts.Defaults.Clone(),
		now:      time.Now,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.version == "" {
		s.version = DefaultVersion
	}
	if s.expiry <= 0 {
		s.expiry = DefaultExpiry
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Save writes the persistable part of state stamped with the current time.
func (s *Store) Save(ctx context.Context, state models.RunState) error {
	data, err := json.Marshal(models.PersistedSnapshot{
		Version:   s.version,
		Timestamp: s.now().UnixMilli(),
		State:     state.Persistable(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// envelope defers decoding the state until the version has been checked.
type envelope struct {
	Version   string          `json:"version"`
	Timestamp int64           `json:"timestamp"`
	State     json.RawMessage `json:"state"`
}

// Load returns the stored state, or nil when there is none. Snapshots with a
// different version or older than the expiry are deleted and treated as absent.
func (s *Store) Load(ctx context.Context) (*models.PersistedState, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	if env.Version != s.version {
		observability.Info("Discarding run snapshot with stale version", "version", env.Version, "want", s.version)
		return nil, s.discard(ctx)
	}

	if s.now().UnixMilli()-env.Timestamp >= s.expiry.Milliseconds() {
		observability.Info("Discarding expired run snapshot", "age", time.Duration(s.now().UnixMilli()-env.Timestamp)*time.Millisecond)
		return nil, s.discard(ctx)
	}

	var state models.PersistedState
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if !state.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedSnapshot, state.Status)
	}
	if state.Outputs == nil {
		state.Outputs = map[models.Role]string{}
	}
	return &state, nil
}

func (s *Store) discard(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete stale snapshot: %w", err)
	}
	return nil
}

// Clear deletes the snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// InitialState seeds the run state at startup from the snapshot, falling
// back to an idle state with default configs. Credentials always start empty.
func (s *Store) InitialState(ctx context.Context) models.RunState {
	state := models.NewRunState(s.defaults)

	persisted, err := s.Load(ctx)
	if err != nil {
		observability.Warn("Ignoring unreadable run snapshot", "error", err)
		return state
	}
	if persisted == nil {
		return state
	}

	state.Status = persisted.Status
	state.CurrentStep = persisted.CurrentStep
	state.StockSymbol = persisted.StockSymbol
	state.StockDataContext = persisted.StockDataContext
	state.Outputs = models.CopyOutputs(persisted.Outputs)
	state.AgentConfigs = s.defaults.Merge(persisted.AgentConfigs)
	return state
}
