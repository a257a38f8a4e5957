package agents

import (
	"context"
	"fmt"
	"sync"

	"stock-council/models"
	"stock-council/observability"
	"stock-council/services"
)

// LLMSource resolves a provider name to its adapter.
type LLMSource interface {
	Get(name string) (services.LLMProvider, error)
}

// Stage runs a fixed set of roles in parallel and waits for all of them.
type Stage struct {
	name  string
	roles []models.Role
	llms  LLMSource
}

// NewStage creates a stage running roles against the providers in llms
func NewStage(name string, roles []models.Role, llms LLMSource) *Stage {
	return &Stage{name: name, roles: append([]models.Role(nil), roles...), llms: llms}
}

func NewAnalystStage(llms LLMSource) *Stage {
	return NewStage("analysts", models.AnalystRoles, llms)
}

func NewManagerStage(llms LLMSource) *Stage {
	return NewStage("managers", models.ManagerRoles, llms)
}

func NewRiskStage(llms LLMSource) *Stage {
	return NewStage("risk", models.RiskRoles, llms)
}

func NewDecisionStage(llms LLMSource) *Stage {
	return NewStage("decision", models.DecisionRoles, llms)
}

func (s *Stage) Name() string { return s.name }

func (s *Stage) Roles() []models.Role {
	return append([]models.Role(nil), s.roles...)
}

// roleResult holds the result of one role's completion
type roleResult struct {
	role models.Role
	text string
	err  error
}

// Execute runs every role concurrently. If any role fails the stage fails
// with the first failure in role order and no outputs are returned.
func (s *Stage) Execute(ctx context.Context, input models.StageInput) (map[models.Role]string, error) {
	metrics := observability.GetMetrics()

	var wg sync.WaitGroup
	results := make([]roleResult, len(s.roles))

	for i, role := range s.roles {
		wg.Add(1)
		go func(idx int, role models.Role) {
			defer wg.Done()

			timer := metrics.NewTimer()
			text, err := s.runRole(ctx, role, input)
			timer.ObserveAgent(string(role))

			results[idx] = roleResult{role: role, text: text, err: err}
			if err != nil {
				metrics.RecordAgentError(string(role), services.CategorizeError(err))
				observability.WithAgent(string(role)).Warn("role failed",
					"stage", s.name,
					"symbol", input.Symbol,
					"error", err)
			}
		}(i, role)
	}

	wg.Wait()

	outputs := make(map[models.Role]string, len(results))
	for _, result := range results {
		if result.err != nil {
			return nil, fmt.Errorf("%s: %w", result.role, result.err)
		}
		outputs[result.role] = result.text
	}
	return outputs, nil
}

func (s *Stage) runRole(ctx context.Context, role models.Role, input models.StageInput) (string, error) {
	cfg, ok := input.AgentConfigs[role]
	if !ok {
		return "", fmt.Errorf("no configuration for role")
	}

	provider, err := s.llms.Get(cfg.Provider)
	if err != nil {
		return "", err
	}

	prompt, err := RenderPrompt(role, cfg, input)
	if err != nil {
		return "", err
	}

	observability.WithAgent(string(role)).Debug("calling model",
		"provider", provider.Name(),
		"model", cfg.Model)

	return provider.Complete(ctx, services.CompletionRequest{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		SystemPrompt: cfg.SystemPrompt,
		UserPrompt:   prompt,
		APIKey:       input.Credentials[cfg.Provider],
	})
}
