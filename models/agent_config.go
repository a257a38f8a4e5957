package models

// Role identifies one participant in the analysis pipeline.
type Role string

const (
	RoleMacroAnalyst       Role = "macro_analyst"
	RoleIndustryAnalyst    Role = "industry_analyst"
	RoleTechnicalAnalyst   Role = "technical_analyst"
	RoleCapitalFlowAnalyst Role = "capital_flow_analyst"
	RoleFundamentalAnalyst Role = "fundamental_analyst"

	RoleFundamentalManager Role = "fundamental_manager"
	RoleMomentumManager    Role = "momentum_manager"

	RoleSystemicRisk  Role = "systemic_risk"
	RolePortfolioRisk Role = "portfolio_risk"

	RoleGeneralManager Role = "general_manager"
)

// AnalystRoles are dispatched together in the first stage.
var AnalystRoles = []Role{
	RoleMacroAnalyst,
	RoleIndustryAnalyst,
	RoleTechnicalAnalyst,
	RoleCapitalFlowAnalyst,
	RoleFundamentalAnalyst,
}

var ManagerRoles = []Role{RoleFundamentalManager, RoleMomentumManager}

var RiskRoles = []Role{RoleSystemicRisk, RolePortfolioRisk}

var DecisionRoles = []Role{RoleGeneralManager}

// AllRoles returns every role in pipeline order.
func AllRoles() []Role {
	roles := make([]Role, 0, len(AnalystRoles)+len(ManagerRoles)+len(RiskRoles)+len(DecisionRoles))
	roles = append(roles, AnalystRoles...)
	roles = append(roles, ManagerRoles...)
	roles = append(roles, RiskRoles...)
	roles = append(roles, DecisionRoles...)
	return roles
}

// IsKnownRole reports whether r belongs to the pipeline.
func IsKnownRole(r Role) bool {
	for _, known := range AllRoles() {
		if known == r {
			return true
		}
	}
	return false
}

// AgentConfig holds the tunable parameters of one participant.
type AgentConfig struct {
	Provider     string  `json:"provider" yaml:"provider"`
	Model        string  `json:"model" yaml:"model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	SystemPrompt string  `json:"systemPrompt,omitempty" yaml:"system_prompt"`
	Prompt       string  `json:"prompt" yaml:"prompt"`
}

// AgentConfigs maps each role to its configuration.
type AgentConfigs map[Role]AgentConfig

// Clone returns an independent copy. AgentConfig holds only value fields,
// so copying the map entries is a full structural copy.
func (c AgentConfigs) Clone() AgentConfigs {
	if c == nil {
		return AgentConfigs{}
	}
	out := make(AgentConfigs, len(c))
	for role, cfg := range c {
		out[role] = cfg
	}
	return out
}

// Merge returns a copy of c with every known role in overrides applied on top.
func (c AgentConfigs) Merge(overrides AgentConfigs) AgentConfigs {
	out := c.Clone()
	for role, cfg := range overrides {
		if IsKnownRole(role) {
			out[role] = cfg
		}
	}
	return out
}
