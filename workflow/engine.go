package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stock-council/models"
	"stock-council/observability"
)

var (
	// ErrRunInProgress is returned when a run is started from a non-idle state.
	ErrRunInProgress = errors.New("a run can only be started from the idle state")
	// ErrUnknownRole is returned when configuring a role outside the pipeline.
	ErrUnknownRole = errors.New("unknown participant role")
)

const fallbackStageError = "analysis failed: unknown error"

// DefaultQuoteCredentialKey is the credential name handed to the fetcher.
const DefaultQuoteCredentialKey = "alphavantage"

// Engine drives a run through fetch and the four stages. It keeps no run
// state of its own: every call takes the current state and returns the next.
type Engine struct {
	fetcher       ReferenceFetcher
	formatter     ContextFormatter
	stages        []stage
	clearer       SnapshotClearer
	credentialKey string
	metrics       *observability.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

type stage struct {
	name     string
	executor StageExecutor
	next     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnapshotClearer sets the store whose snapshot Reset deletes.
func WithSnapshotClearer(c SnapshotClearer) Option {
	return func(e *Engine) { e.clearer = c }
}

// WithQuoteCredentialKey selects which credential is passed to the fetcher.
func WithQuoteCredentialKey(key string) Option {
	return func(e *Engine) { e.credentialKey = key }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(fetcher ReferenceFetcher, formatter ContextFormatter, stages Stages, opts ...Option) *Engine {
	e := &Engine{
		fetcher:   fetcher,
		formatter: formatter,
		stages: []stage{
			{name: "analysts", executor: stages.Analysts, next: 2},
			{name: "managers", executor: stages.Managers, next: 3},
			{name: "risk", executor: stages.Risk, next: 4},
			{name: "decision", executor: stages.Decision, next: models.FinalStep},
		},
		credentialKey: DefaultQuoteCredentialKey,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		if observability.Logger == nil {
			observability.InitLogger(false)
		}
		e.logger = observability.Logger
	}
	return e
}

// StartRun validates symbol, fetches reference data and runs every stage.
// Failures end the run in the error status; the only returned error is
// ErrRunInProgress.
func (e *Engine) StartRun(ctx context.Context, state models.RunState, symbol string, credentials map[string]string, publish Publisher) (models.RunState, error) {
	if state.Status != models.StatusIdle {
		return state, ErrRunInProgress
	}
	if publish == nil {
		publish = func(models.RunState) {}
	}

	state = state.Clone()
	emit := func() { publish(state.Clone()) }

	normalized, err := ValidateSymbol(symbol)
	if err != nil {
		state.Status = models.StatusError
		state.Error = err.Error()
		e.recordRejected()
		e.logger.Warn("Rejected stock symbol", "symbol", symbol, "error", err)
		emit()
		return state, nil
	}

	started := e.now()
	runID := fmt.Sprintf("%s-%d", normalized, started.UnixNano())
	logger := e.logger.With("run_id", runID, "symbol", normalized)
	market, _ := models.SplitSymbol(normalized)
	if e.metrics != nil {
		e.metrics.RecordRunStarted(string(market))
	}

	state.Status = models.StatusFetchingData
	state.CurrentStep = 0
	state.Outputs = map[models.Role]string{}
	state.StockSymbol = normalized
	state.StockDataContext = ""
	state.APIKeys = models.CopyCredentials(credentials)
	state.Error = ""
	emit()
	logger.Info("Analysis run started")

	data, err := e.fetcher.Fetch(ctx, normalized, state.APIKeys[e.credentialKey])
	if err != nil || data == nil {
		state.Status = models.StatusError
		state.Error = fetchFailureMessage(normalized, err)
		logger.Warn("Reference data fetch failed", "error", err)
		e.recordFinished(state.Status, "fetch", started)
		emit()
		return state, nil
	}

	state.StockDataContext = e.formatter.Format(data)
	state.Status = models.StatusRunning
	state.CurrentStep = 1
	emit()

	for _, st := range e.stages {
		stageStart := e.now()
		out, err := st.executor.Execute(ctx, models.StageInput{
			Symbol:       state.StockSymbol,
			PriorOutputs: models.CopyOutputs(state.Outputs),
			AgentConfigs: state.AgentConfigs.Clone(),
			Credentials:  models.CopyCredentials(state.APIKeys),
			Context:      state.StockDataContext,
		})
		if e.metrics != nil {
			e.metrics.RecordStageDuration(st.name, e.now().Sub(stageStart))
		}
		if err != nil {
			state.Status = models.StatusError
			state.Error = err.Error()
			if state.Error == "" {
				state.Error = fallbackStageError
			}
			if e.metrics != nil {
				e.metrics.RecordStageError(st.name)
			}
			logger.Error("Stage failed", "stage", st.name, "error", err)
			e.recordFinished(state.Status, "stage", started)
			emit()
			return state, nil
		}

		fold(state.Outputs, out)
		state.CurrentStep = st.next
		if st.next == models.FinalStep {
			state.Status = models.StatusCompleted
		}
		logger.Debug("Stage completed", "stage", st.name, "step", state.CurrentStep, "outputs", len(out))
		emit()
	}

	e.recordFinished(state.Status, "", started)
	logger.Info("Analysis run completed", "duration", e.now().Sub(started))
	return state, nil
}

// Reset returns the state to idle, keeping agent configs and credentials,
// and deletes the persisted snapshot. A failing clear is logged and ignored.
func (e *Engine) Reset(ctx context.Context, state models.RunState) models.RunState {
	next := models.RunState{
		Status:       models.StatusIdle,
		Outputs:      map[models.Role]string{},
		AgentConfigs: state.AgentConfigs.Clone(),
		APIKeys:      models.CopyCredentials(state.APIKeys),
	}
	if e.clearer != nil {
		if err := e.clearer.Clear(ctx); err != nil {
			e.logger.Warn("Failed to clear run snapshot", "error", err)
		}
	}
	return next
}

// UpdateConfig replaces the configuration of one role. It does not check
// the status; callers decide whether editing is allowed.
func (e *Engine) UpdateConfig(state models.RunState, role models.Role, cfg models.AgentConfig) (models.RunState, error) {
	if !models.IsKnownRole(role) {
		return state, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	next := state.Clone()
	next.AgentConfigs[role] = cfg
	return next, nil
}

// fold merges stage outputs into acc, dropping roles outside the pipeline.
func fold(acc, out map[models.Role]string) {
	for role, text := range out {
		if models.IsKnownRole(role) {
			acc[role] = text
		}
	}
}

func fetchFailureMessage(symbol string, err error) string {
	msg := fmt.Sprintf("could not load market data for %s. Possible causes: the symbol does not exist or is suspended, "+
		"the quote service is unreachable, or the quote API key is invalid", symbol)
	if err != nil {
		msg += fmt.Sprintf(" (%v)", err)
	}
	return msg
}

func (e *Engine) recordRejected() {
	if e.metrics != nil {
		e.metrics.RecordRunRejected()
	}
}

func (e *Engine) recordFinished(status models.Status, reason string, started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordRunFinished(string(status), reason, e.now().Sub(started))
	}
}
