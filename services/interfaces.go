package services

import (
	"context"

	"stock-council/models"
)

// QuoteProvider fetches a real-time quote. credential is the run's quote
// API key and is ignored by providers that need none. A nil quote with a
// nil error means the symbol is unknown.
type QuoteProvider interface {
	Name() string
	GetQuote(ctx context.Context, symbol, credential string) (*models.Quote, error)
}

// NewsProvider fetches recent headlines for a symbol
type NewsProvider interface {
	GetHeadlines(ctx context.Context, symbol string) ([]models.Headline, error)
}

// Compile-time interface verification
var _ QuoteProvider = (*SinaQuoteService)(nil)
var _ QuoteProvider = (*AlphaVantageService)(nil)
var _ NewsProvider = (*SinaNewsService)(nil)
var _ LLMProvider = (*OpenAIService)(nil)
var _ LLMProvider = (*CompatibleService)(nil)
var _ LLMProvider = (*GeminiService)(nil)
var _ LLMProvider = (*BedrockService)(nil)
