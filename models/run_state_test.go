package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func testConfigs() AgentConfigs {
	return AgentConfigs{
		RoleMacroAnalyst:   {Provider: "openai", Model: "gpt-4o", Temperature: 0.3, Prompt: "macro {{.Symbol}}"},
		RoleGeneralManager: {Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.2, Prompt: "decide"},
	}
}

func TestNewRunState(t *testing.T) {
	defaults := testConfigs()
	state := NewRunState(defaults)

	if state.Status != StatusIdle {
		t.Errorf("Status = %v, want StatusIdle", state.Status)
	}
	if state.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0", state.CurrentStep)
	}
	if state.Outputs == nil || len(state.Outputs) != 0 {
		t.Errorf("Outputs = %v, want empty map", state.Outputs)
	}
	if state.APIKeys == nil {
		t.Error("APIKeys should be initialized")
	}

	state.AgentConfigs[RoleMacroAnalyst] = AgentConfig{Model: "changed"}
	if defaults[RoleMacroAnalyst].Model != "gpt-4o" {
		t.Error("NewRunState should not alias the default configs")
	}
}

func TestRunState_Clone(t *testing.T) {
	state := NewRunState(testConfigs())
	state.Outputs[RoleMacroAnalyst] = "original"
	state.APIKeys["openai"] = "sk-test"

	clone := state.Clone()
	clone.Outputs[RoleMacroAnalyst] = "changed"
	clone.APIKeys["openai"] = "other"
	clone.AgentConfigs[RoleGeneralManager] = AgentConfig{Model: "changed"}

	if state.Outputs[RoleMacroAnalyst] != "original" {
		t.Error("Clone should copy Outputs")
	}
	if state.APIKeys["openai"] != "sk-test" {
		t.Error("Clone should copy APIKeys")
	}
	if state.AgentConfigs[RoleGeneralManager].Model != "deepseek-chat" {
		t.Error("Clone should copy AgentConfigs")
	}
}

func TestRunState_PersistableOmitsSecrets(t *testing.T) {
	state := NewRunState(testConfigs())
	state.Status = StatusError
	state.APIKeys["openai"] = "sk-secret"
	state.Error = "boom"

	data, err := json.Marshal(state.Persistable())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("persisted state should not contain credentials")
	}
	if strings.Contains(string(data), "boom") {
		t.Error("persisted state should not contain the error message")
	}
}

func TestRunState_MarshalOmitsAPIKeys(t *testing.T) {
	state := NewRunState(nil)
	state.APIKeys["openai"] = "sk-secret"

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("RunState JSON should never carry credentials")
	}
}

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusIdle, true},
		{StatusFetchingData, true},
		{StatusRunning, true},
		{StatusCompleted, true},
		{StatusError, true},
		{Status("paused"), false},
		{Status(""), false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.want {
			t.Errorf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatus_Active(t *testing.T) {
	if !StatusFetchingData.Active() || !StatusRunning.Active() {
		t.Error("fetching and running should be active")
	}
	if StatusIdle.Active() || StatusCompleted.Active() || StatusError.Active() {
		t.Error("idle, completed and error should not be active")
	}
}
