package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type mockBedrockInvoker struct {
	input  *bedrockruntime.InvokeModelInput
	output []byte
	err    error
}

func (m *mockBedrockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: m.output}, nil
}

func TestBedrockService_Complete(t *testing.T) {
	resetBreakers(t)

	invoker := &mockBedrockInvoker{
		output: []byte(`{"content":[{"type":"text","text":"DECISION: BUY"}],"stop_reason":"end_turn"}`),
	}
	service := newBedrockServiceWithClient(invoker, 0, 0)

	text, err := service.Complete(context.Background(), CompletionRequest{
		Model:        "anthropic.claude-3-5-sonnet-20240620-v1:0",
		Temperature:  0.1,
		SystemPrompt: "You are the general manager.",
		UserPrompt:   "Decide.",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "DECISION: BUY" {
		t.Errorf("Complete() = %q, want %q", text, "DECISION: BUY")
	}

	if got := *invoker.input.ModelId; got != "anthropic.claude-3-5-sonnet-20240620-v1:0" {
		t.Errorf("ModelId = %v", got)
	}

	var req ClaudeRequest
	if err := json.Unmarshal(invoker.input.Body, &req); err != nil {
		t.Fatalf("Failed to unmarshal request body: %v", err)
	}
	if req.AnthropicVersion != bedrockAnthropicVersion {
		t.Errorf("AnthropicVersion = %v, want %v", req.AnthropicVersion, bedrockAnthropicVersion)
	}
	if req.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %v, want 4096 default", req.MaxTokens)
	}
	if req.System != "You are the general manager." {
		t.Errorf("System = %v", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("Messages = %+v", req.Messages)
	}
}

func TestClaudeRequest_EmptySystem(t *testing.T) {
	data, err := json.Marshal(ClaudeRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        1024,
		Messages:         []ClaudeMessage{{Role: "user", Content: "Test"}},
	})
	if err != nil {
		t.Fatalf("Failed to marshal ClaudeRequest: %v", err)
	}
	if strings.Contains(string(data), `"system"`) {
		t.Error("empty system prompt should be omitted")
	}
}

func TestBedrockService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		invoker *mockBedrockInvoker
		wantIs  error
	}{
		{"invoke error", &mockBedrockInvoker{err: errors.New("throttled")}, nil},
		{"malformed body", &mockBedrockInvoker{output: []byte(`not json`)}, nil},
		{"no content", &mockBedrockInvoker{output: []byte(`{"content":[]}`)}, ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetBreakers(t)
			service := newBedrockServiceWithClient(tt.invoker, 1024, 0)
			_, err := service.Complete(context.Background(), CompletionRequest{Model: "m", UserPrompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}
