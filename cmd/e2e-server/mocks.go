package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-council/models"
	"stock-council/services"
)

// MockLLM answers every prompt with a canned report. The report mentions
// the model so tests can tell participants apart.
type MockLLM struct {
	name     string
	decision string
	delay    time.Duration
}

func NewMockLLM(name, decision string, delay time.Duration) *MockLLM {
	return &MockLLM{name: name, decision: decision, delay: delay}
}

func (m *MockLLM) Name() string { return m.name }

func (m *MockLLM) Complete(ctx context.Context, req services.CompletionRequest) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	report := fmt.Sprintf("[%s/%s] Mock assessment based on %d characters of context.", m.name, req.Model, len(req.UserPrompt))
	if m.decision != "" {
		report += "\nDECISION: " + m.decision
	}
	return report, nil
}

// MockQuoteService serves fixed quotes for a few well-known symbols and
// reports every other symbol as unknown.
type MockQuoteService struct {
	quotes map[string]*models.Quote
}

func NewMockQuoteService() *MockQuoteService {
	ts := time.Date(2024, 3, 15, 15, 0, 0, 0, time.FixedZone("CST", 8*60*60))
	return &MockQuoteService{quotes: map[string]*models.Quote{
		"sh600519": mockQuote("sh600519", "贵州茅台", "1680.50", "1701.20", 2456789, ts),
		"sz000001": mockQuote("sz000001", "平安银行", "10.45", "10.38", 98765432, ts),
		"sz300750": mockQuote("sz300750", "宁德时代", "185.20", "190.05", 31234567, ts),
	}}
}

func (m *MockQuoteService) Name() string { return "mock" }

func (m *MockQuoteService) GetQuote(ctx context.Context, symbol, _ string) (*models.Quote, error) {
	q, ok := m.quotes[strings.ToLower(symbol)]
	if !ok {
		return nil, nil
	}
	out := *q
	return &out, nil
}

// MockNewsService returns the same two headlines for every symbol.
type MockNewsService struct{}

func (MockNewsService) GetHeadlines(ctx context.Context, symbol string) ([]models.Headline, error) {
	return []models.Headline{
		{Title: "Northbound funds extend buying streak", URL: "https://example.com/1", PublishedAt: "2024-03-15 09:30"},
		{Title: "Quarterly results beat consensus", URL: "https://example.com/2", PublishedAt: "2024-03-14 18:02"},
	}, nil
}

func mockQuote(symbol, name, preClose, price string, volume int64, ts time.Time) *models.Quote {
	pc := decimal.RequireFromString(preClose)
	p := decimal.RequireFromString(price)
	change := p.Sub(pc)
	return &models.Quote{
		Symbol:        symbol,
		Name:          name,
		Open:          pc,
		PreClose:      pc,
		Price:         p,
		High:          decimal.Max(p, pc),
		Low:           decimal.Min(p, pc),
		Volume:        volume,
		Amount:        p.Mul(decimal.NewFromInt(volume)),
		Change:        change,
		ChangePercent: change.Div(pc).Mul(decimal.NewFromInt(100)).Round(2),
		Timestamp:     ts,
	}
}
