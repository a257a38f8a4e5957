package services

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiClient defines the interface for OpenAI API calls (for testing)
type openaiClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// openaiClientWrapper wraps the openai.Client to implement our interface
type openaiClientWrapper struct {
	client openai.Client
}

func (w *openaiClientWrapper) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return w.client.Chat.Completions.New(ctx, params)
}

// OpenAIService calls OpenAI chat completions. The API key comes with each
// request because operators enter credentials per run.
type OpenAIService struct {
	newClient func(apiKey string) openaiClient
	maxTokens int
	timeout   time.Duration
}

// NewOpenAIService creates an OpenAIService. An empty baseURL uses the public API.
func NewOpenAIService(baseURL string, maxTokens int, timeout time.Duration) *OpenAIService {
	return &OpenAIService{
		newClient: func(apiKey string) openaiClient {
			opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
			if baseURL != "" {
				opts = append(opts, option.WithBaseURL(baseURL))
			}
			return &openaiClientWrapper{client: openai.NewClient(opts...)}
		},
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// newOpenAIServiceWithClient creates an OpenAIService with a custom client (for testing)
func newOpenAIServiceWithClient(client openaiClient, maxTokens int) *OpenAIService {
	return &OpenAIService{
		newClient: func(string) openaiClient { return client },
		maxTokens: maxTokens,
	}
}

func (s *OpenAIService) Name() string { return BreakerOpenAI }

// Complete sends the system and user prompt and returns the first choice
func (s *OpenAIService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := requireKey(BreakerOpenAI, req.APIKey); err != nil {
		return "", err
	}
	client := s.newClient(req.APIKey)

	maxTokens := s.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return callModel(ctx, BreakerOpenAI, s.timeout, func(ctx context.Context) (string, error) {
		messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if req.SystemPrompt != "" {
			messages = append(messages, openai.SystemMessage(req.SystemPrompt))
		}
		messages = append(messages, openai.UserMessage(req.UserPrompt))

		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(req.Model),
			Temperature: openai.Float(req.Temperature),
			Messages:    messages,
		}
		if maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(maxTokens))
		}

		completion, err := client.CreateChatCompletion(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to invoke OpenAI: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("openai: %w", ErrEmptyCompletion)
		}

		return completion.Choices[0].Message.Content, nil
	})
}
