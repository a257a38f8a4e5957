package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stock-council/models"
	"stock-council/services"
)

func TestStage_Execute(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		respond: func(req services.CompletionRequest) (string, error) {
			return "report from " + req.Model, nil
		},
	}
	stage := NewAnalystStage(services.NewLLMRegistry(provider))

	got, err := stage.Execute(context.Background(), testInput(t, "mock"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := map[models.Role]string{}
	for _, role := range models.AnalystRoles {
		want[role] = "report from model-" + string(role)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
	}

	calls := provider.calls()
	if len(calls) != len(models.AnalystRoles) {
		t.Fatalf("provider called %d times, want %d", len(calls), len(models.AnalystRoles))
	}
	for _, req := range calls {
		if req.APIKey != "key-mock" {
			t.Errorf("APIKey = %q, want key-mock", req.APIKey)
		}
		if req.SystemPrompt == "" {
			t.Error("expected system prompt from defaults")
		}
		if !strings.Contains(req.UserPrompt, "sh600519") || !strings.Contains(req.UserPrompt, "Price: 1710.00 CNY") {
			t.Errorf("UserPrompt missing symbol or context: %q", req.UserPrompt)
		}
	}
}

func TestStage_Execute_RunsRolesConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(len(models.AnalystRoles))
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	provider := &mockProvider{
		name: "mock",
		respond: func(req services.CompletionRequest) (string, error) {
			started.Done()
			select {
			case <-allStarted:
				return "ok", nil
			case <-time.After(2 * time.Second):
				return "", errors.New("roles did not run concurrently")
			}
		},
	}

	if _, err := NewAnalystStage(services.NewLLMRegistry(provider)).Execute(context.Background(), testInput(t, "mock")); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestStage_Execute_FailureFailsStage(t *testing.T) {
	boom := errors.New("rate limited")
	provider := &mockProvider{
		name: "mock",
		respond: func(req services.CompletionRequest) (string, error) {
			if req.Model == "model-"+string(models.RolePortfolioRisk) {
				return "", boom
			}
			return "ok", nil
		},
	}

	got, err := NewRiskStage(services.NewLLMRegistry(provider)).Execute(context.Background(), testInput(t, "mock"))
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if !strings.HasPrefix(err.Error(), "portfolio_risk: ") {
		t.Errorf("error = %q, want role prefix", err.Error())
	}
	if got != nil {
		t.Errorf("Execute() outputs = %v, want nil on failure", got)
	}
}

func TestStage_Execute_UnknownProvider(t *testing.T) {
	input := testInput(t, "mock")
	cfg := input.AgentConfigs[models.RoleGeneralManager]
	cfg.Provider = "nope"
	input.AgentConfigs[models.RoleGeneralManager] = cfg

	_, err := NewDecisionStage(services.NewLLMRegistry(&mockProvider{name: "mock"})).Execute(context.Background(), input)
	if !errors.Is(err, services.ErrUnknownProvider) {
		t.Errorf("Execute() error = %v, want ErrUnknownProvider", err)
	}
}

func TestStage_Execute_MissingConfig(t *testing.T) {
	input := testInput(t, "mock")
	delete(input.AgentConfigs, models.RoleMomentumManager)

	_, err := NewManagerStage(services.NewLLMRegistry(&mockProvider{name: "mock"})).Execute(context.Background(), input)
	if err == nil || !strings.HasPrefix(err.Error(), "momentum_manager: ") {
		t.Errorf("Execute() error = %v, want momentum_manager failure", err)
	}
}

func TestStage_Execute_PassesPriorOutputs(t *testing.T) {
	provider := &mockProvider{name: "mock"}
	input := testInput(t, "mock")
	input.PriorOutputs = map[models.Role]string{
		models.RoleFundamentalManager: "long-term view",
		models.RoleSystemicRisk:       "systemic risk is low",
	}

	if _, err := NewDecisionStage(services.NewLLMRegistry(provider)).Execute(context.Background(), input); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	prompt := provider.calls()[0].UserPrompt
	if !strings.Contains(prompt, "long-term view") || !strings.Contains(prompt, "systemic risk is low") {
		t.Errorf("decision prompt missing prior outputs: %q", prompt)
	}
}

func TestStageConstructors(t *testing.T) {
	registry := services.NewLLMRegistry()
	tests := []struct {
		stage *Stage
		name  string
		roles []models.Role
	}{
		{NewAnalystStage(registry), "analysts", models.AnalystRoles},
		{NewManagerStage(registry), "managers", models.ManagerRoles},
		{NewRiskStage(registry), "risk", models.RiskRoles},
		{NewDecisionStage(registry), "decision", models.DecisionRoles},
	}
	for _, tt := range tests {
		if tt.stage.Name() != tt.name {
			t.Errorf("Name() = %v, want %v", tt.stage.Name(), tt.name)
		}
		if diff := cmp.Diff(tt.roles, tt.stage.Roles()); diff != "" {
			t.Errorf("%s Roles() mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}
