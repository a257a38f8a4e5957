package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"rate limit status", &APIError{Service: "sina", StatusCode: 429}, "rate_limit"},
		{"unauthorized status", &APIError{Service: "sina", StatusCode: 401}, "auth_error"},
		{"forbidden status", &APIError{Service: "sina", StatusCode: 403}, "auth_error"},
		{"server status", fmt.Errorf("wrapped: %w", &APIError{Service: "sina", StatusCode: 502}), "server_error"},
		{"circuit open", fmt.Errorf("service sina unavailable: %w", ErrCircuitOpen), "circuit_open"},
		{"missing key", fmt.Errorf("openai: %w", ErrMissingAPIKey), "auth_error"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout"},
		{"timeout text", errors.New("i/o timeout"), "timeout"},
		{"rate limit text", errors.New("Rate limit reached"), "rate_limit"},
		{"auth text", errors.New("Invalid API key provided"), "auth_error"},
		{"connection text", errors.New("connection refused"), "connection_error"},
		{"other", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeAPIError(tt.err); got != tt.want {
				t.Errorf("categorizeAPIError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Service: "alphavantage", Operation: "quote", StatusCode: 500, Body: "oops"}
	want := "alphavantage quote: status 500: oops"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err.Body = ""
	if err.Error() != "alphavantage quote: status 500" {
		t.Errorf("Error() without body = %q", err.Error())
	}
}
