package services

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiService calls Google's Gemini API.
type GeminiService struct {
	baseURL   string
	maxTokens int
	timeout   time.Duration
}

// NewGeminiService creates a GeminiService. An empty baseURL uses the public API.
func NewGeminiService(baseURL string, maxTokens int, timeout time.Duration) *GeminiService {
	return &GeminiService{baseURL: baseURL, maxTokens: maxTokens, timeout: timeout}
}

func (s *GeminiService) Name() string { return BreakerGemini }

func (s *GeminiService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := requireKey(BreakerGemini, req.APIKey); err != nil {
		return "", err
	}

	cc := &genai.ClientConfig{
		APIKey:  req.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	maxTokens := s.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return callModel(ctx, BreakerGemini, s.timeout, func(ctx context.Context) (string, error) {
		config := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(req.Temperature)),
		}
		if req.SystemPrompt != "" {
			config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
		}
		if maxTokens > 0 {
			config.MaxOutputTokens = int32(maxTokens)
		}

		resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), config)
		if err != nil {
			return "", fmt.Errorf("gemini generation failed: %w", err)
		}
		return resp.Text(), nil
	})
}
