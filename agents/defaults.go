package agents

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stock-council/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// configOverride distinguishes an explicit zero temperature from an absent one.
type configOverride struct {
	Provider     *string  `yaml:"provider"`
	Model        *string  `yaml:"model"`
	Temperature  *float64 `yaml:"temperature"`
	SystemPrompt *string  `yaml:"system_prompt"`
	Prompt       *string  `yaml:"prompt"`
}

func (o configOverride) apply(cfg models.AgentConfig) models.AgentConfig {
	if o.Provider != nil {
		cfg.Provider = *o.Provider
	}
	if o.Model != nil {
		cfg.Model = *o.Model
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.SystemPrompt != nil {
		cfg.SystemPrompt = *o.SystemPrompt
	}
	if o.Prompt != nil {
		cfg.Prompt = *o.Prompt
	}
	return cfg
}

// DefaultConfigs returns the built-in configuration of every role.
func DefaultConfigs() (models.AgentConfigs, error) {
	var configs models.AgentConfigs
	if err := yaml.Unmarshal(defaultsYAML, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse built-in agent defaults: %w", err)
	}
	for _, role := range models.AllRoles() {
		if _, ok := configs[role]; !ok {
			return nil, fmt.Errorf("built-in agent defaults missing role %s", role)
		}
	}
	return configs, nil
}

// LoadConfigs returns the built-in defaults with the YAML file at path laid
// over them field by field. An empty path returns the defaults.
func LoadConfigs(path string) (models.AgentConfigs, error) {
	configs, err := DefaultConfigs()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return configs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config file: %w", err)
	}
	return applyOverrides(configs, data)
}

func applyOverrides(configs models.AgentConfigs, data []byte) (models.AgentConfigs, error) {
	var overrides map[models.Role]configOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse agent config file: %w", err)
	}

	out := configs.Clone()
	for role, override := range overrides {
		if !models.IsKnownRole(role) {
			return nil, fmt.Errorf("agent config file: unknown role %q", role)
		}
		out[role] = override.apply(out[role])
	}
	return out, nil
}
