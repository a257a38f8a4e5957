package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"stock-council/history"
	"stock-council/models"
	"stock-council/observability"
	"stock-council/services"
	"stock-council/snapshot"
	"stock-council/storage"
	"stock-council/workflow"
)

var testDefaults = models.AgentConfigs{
	models.RoleMacroAnalyst:   {Provider: "mock", Model: "m", Prompt: "macro {{.Symbol}}"},
	models.RoleGeneralManager: {Provider: "mock", Model: "m", Prompt: "decide {{.Symbol}}"},
}

type stubFetcher struct {
	err error
}

func (f *stubFetcher) Fetch(ctx context.Context, symbol, credential string) (*models.ReferenceData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ReferenceData{Quote: &models.Quote{Symbol: symbol, Price: decimal.NewFromInt(10)}}, nil
}

type stubFormatter struct{}

func (stubFormatter) Format(data *models.ReferenceData) string {
	return "Price: " + data.Quote.Price.StringFixed(2)
}

// gatedExecutor answers for its roles. When gate is set it signals entered
// and blocks until the gate closes or ctx ends.
type gatedExecutor struct {
	roles   []models.Role
	output  string
	err     error
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (e *gatedExecutor) Execute(ctx context.Context, input models.StageInput) (map[models.Role]string, error) {
	if e.gate != nil {
		e.once.Do(func() { close(e.entered) })
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make(map[models.Role]string, len(e.roles))
	for _, role := range e.roles {
		out[role] = e.output
	}
	return out, nil
}

func gated(roles []models.Role) *gatedExecutor {
	return &gatedExecutor{roles: roles, output: "ok", gate: make(chan struct{}), entered: make(chan struct{})}
}

// failingKV rejects every write.
type failingKV struct {
	storage.KV
}

func (failingKV) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

type sessionFixture struct {
	session   *Session
	snapshots *snapshot.Store
	ledger    *history.Ledger
	analysts  *gatedExecutor
	decision  *gatedExecutor
	metrics   *observability.Metrics
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	kv       storage.KV
	fetcher  *stubFetcher
	analysts *gatedExecutor
	initial  *models.RunState
}

func withKV(kv storage.KV) fixtureOption {
	return func(c *fixtureConfig) { c.kv = kv }
}

func withAnalysts(e *gatedExecutor) fixtureOption {
	return func(c *fixtureConfig) { c.analysts = e }
}

func withFetchError(err error) fixtureOption {
	return func(c *fixtureConfig) { c.fetcher.err = err }
}

func withInitial(state models.RunState) fixtureOption {
	return func(c *fixtureConfig) { c.initial = &state }
}

func newSessionFixture(t *testing.T, opts ...fixtureOption) *sessionFixture {
	t.Helper()
	c := &fixtureConfig{
		kv:       storage.NewMemoryStore(),
		fetcher:  &stubFetcher{},
		analysts: &gatedExecutor{roles: models.AnalystRoles, output: "analysis"},
	}
	for _, opt := range opts {
		opt(c)
	}

	snapshots := snapshot.NewStore(c.kv, snapshot.Options{Defaults: testDefaults})
	ledger := history.NewLedger(c.kv, history.Options{Defaults: testDefaults})
	decision := &gatedExecutor{roles: models.DecisionRoles, output: "Weighing it all.\nDECISION: BUY"}
	engine := workflow.NewEngine(c.fetcher, stubFormatter{}, workflow.Stages{
		Analysts: c.analysts,
		Managers: &gatedExecutor{roles: models.ManagerRoles, output: "synthesis"},
		Risk:     &gatedExecutor{roles: models.RiskRoles, output: "risk"},
		Decision: decision,
	}, workflow.WithSnapshotClearer(snapshots))

	initial := models.NewRunState(testDefaults)
	if c.initial != nil {
		initial = *c.initial
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(ctx, engine, snapshots, ledger, initial, WithSessionMetrics(metrics))
	t.Cleanup(func() {
		cancel()
		session.Wait()
	})

	return &sessionFixture{
		session:   session,
		snapshots: snapshots,
		ledger:    ledger,
		analysts:  c.analysts,
		decision:  decision,
		metrics:   metrics,
	}
}

// mockLLM answers every prompt with a fixed text.
type mockLLM struct {
	name  string
	reply string
}

func (m *mockLLM) Name() string { return m.name }

func (m *mockLLM) Complete(ctx context.Context, req services.CompletionRequest) (string, error) {
	return m.reply, nil
}

type mockQuotes struct{}

func (mockQuotes) Name() string { return "mock" }

func (mockQuotes) GetQuote(ctx context.Context, symbol, credential string) (*models.Quote, error) {
	if symbol == "sh600000" {
		return nil, nil
	}
	return &models.Quote{Symbol: symbol, Name: "Test Co", Price: decimal.NewFromInt(12)}, nil
}
