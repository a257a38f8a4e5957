package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// resetBreakers isolates a test from breaker state left by earlier failures
func resetBreakers(t *testing.T) {
	t.Helper()
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))
}

type stubProvider struct {
	name string
	text string
	err  error
	last CompletionRequest
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(_ context.Context, req CompletionRequest) (string, error) {
	p.last = req
	return p.text, p.err
}

func TestLLMRegistry_Get(t *testing.T) {
	openai := &stubProvider{name: "openai"}
	deepseek := &stubProvider{name: "deepseek"}
	registry := NewLLMRegistry(openai, deepseek)

	got, err := registry.Get(" OpenAI ")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != openai {
		t.Errorf("Get() returned %v, want openai provider", got.Name())
	}

	if _, err := registry.Get("claude"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(claude) error = %v, want ErrUnknownProvider", err)
	}
}

func TestLLMRegistry_Names(t *testing.T) {
	registry := NewLLMRegistry(&stubProvider{name: "qwen"}, &stubProvider{name: "deepseek"})
	registry.Register(&stubProvider{name: "Gemini"})

	want := []string{"deepseek", "gemini", "qwen"}
	if diff := cmp.Diff(want, registry.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestCallModel_Success(t *testing.T) {
	resetBreakers(t)

	text, err := callModel(context.Background(), "test-llm", 0, func(ctx context.Context) (string, error) {
		return "DECISION: HOLD", nil
	})
	if err != nil {
		t.Fatalf("callModel() error = %v", err)
	}
	if text != "DECISION: HOLD" {
		t.Errorf("callModel() = %q, want %q", text, "DECISION: HOLD")
	}
}

func TestCallModel_EmptyText(t *testing.T) {
	resetBreakers(t)

	_, err := callModel(context.Background(), "test-llm", 0, func(ctx context.Context) (string, error) {
		return "   \n", nil
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("callModel() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestCallModel_AppliesTimeout(t *testing.T) {
	resetBreakers(t)

	_, err := callModel(context.Background(), "test-llm", 20*time.Millisecond, func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the call context")
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("callModel() error = %v, want DeadlineExceeded", err)
	}
}

func TestCallModel_NoTimeoutLeavesContext(t *testing.T) {
	resetBreakers(t)

	_, err := callModel(context.Background(), "test-llm", 0, func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout should not add a deadline")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("callModel() error = %v", err)
	}
}

func TestRequireKey(t *testing.T) {
	if err := requireKey("openai", "sk-1"); err != nil {
		t.Errorf("requireKey() error = %v, want nil", err)
	}
	for _, key := range []string{"", "   "} {
		if err := requireKey("openai", key); !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("requireKey(%q) error = %v, want ErrMissingAPIKey", key, err)
		}
	}
}
