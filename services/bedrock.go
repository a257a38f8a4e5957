package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// bedrockInvoker is the slice of the Bedrock runtime client we use (for testing)
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockService invokes Claude models on AWS Bedrock. Unlike the other
// providers it authenticates through the AWS default credential chain, so
// the per-run API key is ignored.
type BedrockService struct {
	client    bedrockInvoker
	maxTokens int
	timeout   time.Duration
}

// ClaudeRequest represents the request format for Claude models via Bedrock
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
}

// ClaudeMessage represents a message in the Claude conversation
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockService creates a BedrockService for the given region
func NewBedrockService(ctx context.Context, region string, maxTokens int, timeout time.Duration) (*BedrockService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return newBedrockServiceWithClient(bedrockruntime.NewFromConfig(cfg), maxTokens, timeout), nil
}

func newBedrockServiceWithClient(client bedrockInvoker, maxTokens int, timeout time.Duration) *BedrockService {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockService{client: client, maxTokens: maxTokens, timeout: timeout}
}

func (s *BedrockService) Name() string { return BreakerBedrock }

// Complete sends the prompt to the model id in req.Model
func (s *BedrockService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := s.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	reqBody, err := json.Marshal(ClaudeRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		System:           req.SystemPrompt,
		Messages:         []ClaudeMessage{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return callModel(ctx, BreakerBedrock, s.timeout, func(ctx context.Context) (string, error) {
		output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(req.Model),
			Body:        reqBody,
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to invoke model: %w", err)
		}

		var response ClaudeResponse
		if err := json.Unmarshal(output.Body, &response); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(response.Content) == 0 {
			return "", fmt.Errorf("bedrock: %w", ErrEmptyCompletion)
		}
		return response.Content[0].Text, nil
	})
}
