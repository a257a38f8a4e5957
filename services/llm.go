package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stock-council/observability"
)

var (
	// ErrMissingAPIKey is returned when the run carries no credential for a provider.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrUnknownProvider is returned for provider names with no registered adapter.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrEmptyCompletion is returned when a provider answers without text.
	ErrEmptyCompletion = errors.New("empty response from model")
)

// CompletionRequest is one prompt sent to a model on behalf of a participant.
type CompletionRequest struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	UserPrompt   string
	APIKey       string
	MaxTokens    int
}

// LLMProvider turns a prompt into text using one vendor's API.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// LLMRegistry maps provider names to adapters.
type LLMRegistry struct {
	providers map[string]LLMProvider
}

// NewLLMRegistry registers each provider under its Name.
func NewLLMRegistry(providers ...LLMProvider) *LLMRegistry {
	r := &LLMRegistry{providers: make(map[string]LLMProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *LLMRegistry) Register(p LLMProvider) {
	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns the provider registered under name.
func (r *LLMRegistry) Get(name string) (LLMProvider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers in alphabetical order.
func (r *LLMRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// callModel wraps one provider call with the breaker, metrics and the
// optional transport timeout. A zero timeout leaves ctx untouched.
func callModel(ctx context.Context, service string, timeout time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(service, "complete")
	timer := metrics.NewTimer()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := WithCircuitBreaker(ctx, service, func() (string, error) {
		text, err := fn(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%s: %w", service, ErrEmptyCompletion)
		}
		return text, nil
	})

	timer.ObserveExternalAPI(service, "complete")
	if err != nil {
		metrics.RecordExternalAPIError(service, "complete", categorizeAPIError(err))
	}
	return result, err
}

func requireKey(service, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: %w", service, ErrMissingAPIKey)
	}
	return nil
}
