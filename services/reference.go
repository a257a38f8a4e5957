package services

import (
	"context"

	"stock-council/models"
	"stock-council/observability"
)

// ReferenceDataService loads everything a run is grounded on: the quote is
// mandatory, headlines are best effort.
type ReferenceDataService struct {
	quotes QuoteProvider
	news   NewsProvider
}

// NewReferenceDataService creates a ReferenceDataService. news may be nil.
func NewReferenceDataService(quotes QuoteProvider, news NewsProvider) *ReferenceDataService {
	return &ReferenceDataService{quotes: quotes, news: news}
}

// Fetch returns nil, nil when the quote provider does not know the symbol
func (s *ReferenceDataService) Fetch(ctx context.Context, symbol, credential string) (*models.ReferenceData, error) {
	quote, err := s.quotes.GetQuote(ctx, symbol, credential)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, nil
	}

	data := &models.ReferenceData{Quote: quote}
	if s.news == nil {
		return data, nil
	}

	headlines, err := s.news.GetHeadlines(ctx, symbol)
	if err != nil {
		observability.Warn("headline fetch failed, continuing without news",
			"symbol", symbol,
			"error", err)
		return data, nil
	}
	data.Headlines = headlines
	return data, nil
}
