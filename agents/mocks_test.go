package agents

import (
	"context"
	"sync"
	"testing"

	"stock-council/models"
	"stock-council/services"
)

type mockProvider struct {
	name    string
	respond func(req services.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []services.CompletionRequest
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, req services.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.respond == nil {
		return "ok", nil
	}
	return m.respond(req)
}

func (m *mockProvider) calls() []services.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.CompletionRequest(nil), m.requests...)
}

// testConfigs returns the built-in configs pointed at a single provider
func testConfigs(t *testing.T, provider string) models.AgentConfigs {
	t.Helper()
	configs, err := DefaultConfigs()
	if err != nil {
		t.Fatalf("DefaultConfigs() error = %v", err)
	}
	for role, cfg := range configs {
		cfg.Provider = provider
		cfg.Model = "model-" + string(role)
		configs[role] = cfg
	}
	return configs
}

func testInput(t *testing.T, provider string) models.StageInput {
	return models.StageInput{
		Symbol:       "sh600519",
		Context:      "Price: 1710.00 CNY",
		PriorOutputs: map[models.Role]string{},
		AgentConfigs: testConfigs(t, provider),
		Credentials:  map[string]string{provider: "key-" + provider},
	}
}
