package agents

import (
	"fmt"
	"strings"
	"text/template"

	"stock-council/models"
)

// promptData is what a role's prompt template can reference.
type promptData struct {
	Role    string
	Symbol  string
	Context string
	// Outputs holds earlier stages' reports keyed by role name, for
	// templates that want one report, e.g. {{index .Outputs "macro_analyst"}}.
	Outputs map[string]string
	// Prior is every earlier report rendered in pipeline order.
	Prior string
}

// RenderPrompt executes the role's prompt template against the stage input.
func RenderPrompt(role models.Role, cfg models.AgentConfig, input models.StageInput) (string, error) {
	tmpl, err := template.New(string(role)).Option("missingkey=zero").Parse(cfg.Prompt)
	if err != nil {
		return "", fmt.Errorf("invalid prompt template: %w", err)
	}

	outputs := make(map[string]string, len(input.PriorOutputs))
	for r, text := range input.PriorOutputs {
		outputs[string(r)] = text
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, promptData{
		Role:    string(role),
		Symbol:  input.Symbol,
		Context: input.Context,
		Outputs: outputs,
		Prior:   formatPrior(input.PriorOutputs),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}

func formatPrior(outputs map[models.Role]string) string {
	var sb strings.Builder
	for _, role := range models.AllRoles() {
		text, ok := outputs[role]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n%s", role, strings.TrimSpace(text))
	}
	return sb.String()
}
