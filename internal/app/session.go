package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stock-council/models"
	"stock-council/observability"
	"stock-council/workflow"
)

// ErrConfigLocked is returned when a role is edited outside the idle status.
var ErrConfigLocked = errors.New("agent configuration can only be changed while idle")

// Engine defines the workflow operations needed by Session
type Engine interface {
	StartRun(ctx context.Context, state models.RunState, symbol string, credentials map[string]string, publish workflow.Publisher) (models.RunState, error)
	Reset(ctx context.Context, state models.RunState) models.RunState
	UpdateConfig(state models.RunState, role models.Role, cfg models.AgentConfig) (models.RunState, error)
}

// SnapshotStore defines the snapshot operations needed by Session
type SnapshotStore interface {
	Save(ctx context.Context, state models.RunState) error
}

// HistoryLedger defines the history operations needed by Session
type HistoryLedger interface {
	List(ctx context.Context) ([]models.HistoryRecord, error)
	Record(ctx context.Context, state models.RunState) (models.HistoryRecord, error)
	Get(ctx context.Context, id string) (models.HistoryRecord, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Restore(rec models.HistoryRecord) models.RunState
}

const subscriberBuffer = 16

// Session is the single owner of the run state. It applies every state the
// engine publishes, saves the snapshot while a run is active, records
// history on the transitions that matter and fans states out to subscribers.
//
// Reset does not cancel an in-flight run. It bumps the generation so that
// later publishes from the abandoned run no longer change the current state;
// their snapshot and history writes still happen and the last write wins.
type Session struct {
	ctx       context.Context
	engine    Engine
	snapshots SnapshotStore
	history   HistoryLedger
	metrics   *observability.Metrics

	mu          sync.Mutex
	state       models.RunState
	generation  uint64
	launching   bool
	subscribers map[uuid.UUID]chan models.RunState

	runs sync.WaitGroup
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionMetrics enables persistence and history metrics
func WithSessionMetrics(m *observability.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession creates a Session starting from initial. ctx bounds background
// runs and persistence; cancel it only on shutdown.
func NewSession(ctx context.Context, engine Engine, snapshots SnapshotStore, history HistoryLedger, initial models.RunState, opts ...SessionOption) *Session {
	s := &Session{
		ctx:         ctx,
		engine:      engine,
		snapshots:   snapshots,
		history:     history,
		state:       settle(initial.Clone()),
		subscribers: make(map[uuid.UUID]chan models.RunState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errInterrupted marks a state that was active when it was persisted.
const errInterrupted = "the previous run was interrupted before it finished; reset to start a new analysis"

// settle turns a persisted in-flight state into an error, since no run is
// executing it any more.
func settle(state models.RunState) models.RunState {
	if state.Status.Active() {
		state.Status = models.StatusError
		state.Error = errInterrupted
	}
	return state
}

// State returns a copy of the current run state
func (s *Session) State() models.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// StartRun launches a run in the background and returns the first state it
// publishes, which is either fetching_data or a validation error.
func (s *Session) StartRun(symbol string, credentials map[string]string) (models.RunState, error) {
	gen, state, err := s.begin()
	if err != nil {
		return state, err
	}

	first := make(chan models.RunState, 1)
	publish := s.publisher(gen, first)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(s.ctx, gen, state, symbol, credentials, publish)
		// Unblocks the caller if the engine refused the run without publishing.
		select {
		case first <- state:
		default:
		}
	}()

	return <-first, nil
}

// RunSync runs to a terminal status on the caller's goroutine
func (s *Session) RunSync(ctx context.Context, symbol string, credentials map[string]string) (models.RunState, error) {
	gen, state, err := s.begin()
	if err != nil {
		return state, err
	}
	return s.execute(ctx, gen, state, symbol, credentials, s.publisher(gen, nil)), nil
}

func (s *Session) begin() (uint64, models.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launching || s.state.Status != models.StatusIdle {
		return 0, s.state.Clone(), workflow.ErrRunInProgress
	}
	s.launching = true
	return s.generation, s.state.Clone(), nil
}

func (s *Session) execute(ctx context.Context, gen uint64, state models.RunState, symbol string, credentials map[string]string, publish workflow.Publisher) models.RunState {
	final, err := s.engine.StartRun(ctx, state, symbol, credentials, publish)
	if err != nil {
		observability.Warn("run was not started", "symbol", symbol, "error", err)
	}

	s.mu.Lock()
	if gen == s.generation {
		s.launching = false
	}
	s.mu.Unlock()
	return final
}

// publisher returns the callback handed to the engine for one run. The
// engine calls it sequentially, so the closure state needs no lock.
func (s *Session) publisher(gen uint64, first chan<- models.RunState) workflow.Publisher {
	last := models.StatusIdle
	sent := false
	return func(next models.RunState) {
		prev := last
		last = next.Status

		s.apply(gen, next)
		s.persist(prev, next)

		if first != nil && !sent {
			sent = true
			first <- next.Clone()
		}
	}
}

func (s *Session) apply(gen uint64, next models.RunState) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		observability.Debug("ignoring state from abandoned run",
			"symbol", next.StockSymbol,
			"status", string(next.Status))
		return
	}
	s.state = next.Clone()
	s.broadcast(next)
	s.mu.Unlock()
}

// persist saves every non-idle state and records history when a run
// starts its stages, completes, or fails after validation.
func (s *Session) persist(prev models.Status, next models.RunState) {
	if next.Status != models.StatusIdle {
		s.observe("snapshot", "save", s.snapshots.Save(s.ctx, next))
	}
	if !shouldRecord(prev, next.Status) {
		return
	}
	rec, err := s.history.Record(s.ctx, next)
	s.observe("history", "record", err)
	if err == nil && next.Status == models.StatusCompleted && s.metrics != nil {
		s.metrics.RecordHistoryDecision(string(rec.GMDecision))
	}
}

func shouldRecord(prev, next models.Status) bool {
	switch next {
	case models.StatusRunning:
		return prev == models.StatusFetchingData
	case models.StatusCompleted:
		return prev != models.StatusCompleted
	case models.StatusError:
		return prev.Active()
	}
	return false
}

// observe logs and counts a persistence failure. It never changes run state.
func (s *Session) observe(store, operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordPersistenceOp(store, operation)
	}
	if err == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPersistenceError(store, operation)
	}
	observability.Warn("persistence failed",
		"store", store,
		"operation", operation,
		"error", err)
}

// Reset returns to idle keeping configs and credentials, and clears the snapshot
func (s *Session) Reset(ctx context.Context) models.RunState {
	s.mu.Lock()
	s.generation++
	s.launching = false
	s.state = s.engine.Reset(ctx, s.state)
	next := s.state.Clone()
	s.broadcast(next)
	s.mu.Unlock()
	return next
}

// UpdateConfig replaces one role's configuration. Only allowed while idle.
func (s *Session) UpdateConfig(role models.Role, cfg models.AgentConfig) (models.RunState, error) {
	s.mu.Lock()
	if s.state.Status != models.StatusIdle || s.launching {
		state := s.state.Clone()
		s.mu.Unlock()
		return state, ErrConfigLocked
	}
	next, err := s.engine.UpdateConfig(s.state, role, cfg)
	if err != nil {
		state := s.state.Clone()
		s.mu.Unlock()
		return state, err
	}
	s.state = next
	s.broadcast(next)
	s.mu.Unlock()
	return next.Clone(), nil
}

// History lists past runs, newest first
func (s *Session) History(ctx context.Context) ([]models.HistoryRecord, error) {
	items, err := s.history.List(ctx)
	s.observe("history", "list", err)
	return items, err
}

func (s *Session) DeleteHistory(ctx context.Context, id string) error {
	err := s.history.Delete(ctx, id)
	s.observe("history", "delete", err)
	return err
}

func (s *Session) ClearHistory(ctx context.Context) error {
	err := s.history.ClearAll(ctx)
	s.observe("history", "clear", err)
	return err
}

// RestoreHistory makes a past run the current state. Refused while a run
// is in flight.
func (s *Session) RestoreHistory(ctx context.Context, id string) (models.RunState, error) {
	rec, err := s.history.Get(ctx, id)
	if err != nil {
		return models.RunState{}, err
	}

	s.mu.Lock()
	if s.launching || s.state.Status.Active() {
		state := s.state.Clone()
		s.mu.Unlock()
		return state, fmt.Errorf("cannot restore while a run is active: %w", workflow.ErrRunInProgress)
	}
	s.generation++
	s.state = settle(s.history.Restore(rec))
	next := s.state.Clone()
	s.broadcast(next)
	s.mu.Unlock()

	if next.Status != models.StatusIdle {
		s.observe("snapshot", "save", s.snapshots.Save(ctx, next))
	}
	return next, nil
}

// Subscribe registers for state changes. Call the returned function to
// unsubscribe.
func (s *Session) Subscribe() (uuid.UUID, <-chan models.RunState, func()) {
	id := uuid.New()
	ch := make(chan models.RunState, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until every background run has returned
func (s *Session) Wait() {
	s.runs.Wait()
}

// broadcast must be called with s.mu held. Sends never block, so a slow
// subscriber misses updates instead of stalling the run.
func (s *Session) broadcast(state models.RunState) {
	for _, ch := range s.subscribers {
		select {
		case ch <- state.Clone():
		default:
			observability.Debug("subscriber is behind, dropping state update")
		}
	}
}
