package workflow

import (
	"context"
	"sync"

	"stock-council/models"

	"github.com/shopspring/decimal"
)

type mockFetcher struct {
	data       *models.ReferenceData
	err        error
	calls      int
	symbol     string
	credential string
}

func (m *mockFetcher) Fetch(ctx context.Context, symbol, credential string) (*models.ReferenceData, error) {
	m.calls++
	m.symbol = symbol
	m.credential = credential
	return m.data, m.err
}

type mockFormatter struct {
	context string
}

func (m *mockFormatter) Format(data *models.ReferenceData) string {
	return m.context
}

type mockExecutor struct {
	mu     sync.Mutex
	roles  []models.Role
	err    error
	calls  int
	inputs []models.StageInput
}

func (m *mockExecutor) Execute(ctx context.Context, input models.StageInput) (map[models.Role]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[models.Role]string, len(m.roles))
	for _, role := range m.roles {
		out[role] = string(role) + " report for " + input.Symbol
	}
	return out, nil
}

type mockClearer struct {
	calls int
	err   error
}

func (m *mockClearer) Clear(ctx context.Context) error {
	m.calls++
	return m.err
}

// recorder collects every published state.
type recorder struct {
	states []models.RunState
}

func (r *recorder) publish(s models.RunState) {
	r.states = append(r.states, s)
}

func (r *recorder) steps() []int {
	steps := make([]int, 0, len(r.states))
	for _, s := range r.states {
		steps = append(steps, s.CurrentStep)
	}
	return steps
}

type fixture struct {
	fetcher   *mockFetcher
	analysts  *mockExecutor
	managers  *mockExecutor
	risk      *mockExecutor
	decision  *mockExecutor
	clearer   *mockClearer
	engine    *Engine
	defaults  models.AgentConfigs
	published *recorder
}

func newFixture() *fixture {
	f := &fixture{
		fetcher: &mockFetcher{data: &models.ReferenceData{
			Quote: &models.Quote{Symbol: "sh600519", Name: "Kweichow Moutai", Price: decimal.NewFromFloat(1688.5)},
		}},
		analysts:  &mockExecutor{roles: models.AnalystRoles},
		managers:  &mockExecutor{roles: models.ManagerRoles},
		risk:      &mockExecutor{roles: models.RiskRoles},
		decision:  &mockExecutor{roles: models.DecisionRoles},
		clearer:   &mockClearer{},
		published: &recorder{},
		defaults: models.AgentConfigs{
			models.RoleMacroAnalyst:   {Provider: "openai", Model: "gpt-4o", Temperature: 0.3},
			models.RoleGeneralManager: {Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.2},
		},
	}
	f.engine = NewEngine(f.fetcher, &mockFormatter{context: "price 1688.50"}, Stages{
		Analysts: f.analysts,
		Managers: f.managers,
		Risk:     f.risk,
		Decision: f.decision,
	}, WithSnapshotClearer(f.clearer))
	return f
}

func (f *fixture) executorCalls() int {
	return f.analysts.calls + f.managers.calls + f.risk.calls + f.decision.calls
}
