package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// CompatibleService talks to vendors exposing an OpenAI-compatible chat
// endpoint, such as DeepSeek and Qwen (DashScope compatible mode).
type CompatibleService struct {
	name      string
	baseURL   string
	maxTokens int
	timeout   time.Duration
}

// NewCompatibleService creates an adapter registered under name.
func NewCompatibleService(name, baseURL string, maxTokens int, timeout time.Duration) *CompatibleService {
	return &CompatibleService{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

func NewDeepSeekService(baseURL string, maxTokens int, timeout time.Duration) *CompatibleService {
	return NewCompatibleService(BreakerDeepSeek, baseURL, maxTokens, timeout)
}

func NewQwenService(baseURL string, maxTokens int, timeout time.Duration) *CompatibleService {
	return NewCompatibleService(BreakerQwen, baseURL, maxTokens, timeout)
}

func (s *CompatibleService) Name() string { return s.name }

func (s *CompatibleService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := requireKey(s.name, req.APIKey); err != nil {
		return "", err
	}

	cfg := goopenai.DefaultConfig(req.APIKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	client := goopenai.NewClientWithConfig(cfg)

	maxTokens := s.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return callModel(ctx, s.name, s.timeout, func(ctx context.Context) (string, error) {
		messages := make([]goopenai.ChatCompletionMessage, 0, 2)
		if req.SystemPrompt != "" {
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			})
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		})

		resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: float32(req.Temperature),
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("failed to invoke %s: %w", s.name, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s: %w", s.name, ErrEmptyCompletion)
		}
		return resp.Choices[0].Message.Content, nil
	})
}
