package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market is the exchange prefix of an A-share symbol.
type Market string

const (
	MarketShanghai Market = "sh"
	MarketShenzhen Market = "sz"
)

// SplitSymbol splits a normalized symbol like "sh600519" into market and code.
func SplitSymbol(symbol string) (Market, string) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if len(symbol) > 2 {
		switch Market(symbol[:2]) {
		case MarketShanghai, MarketShenzhen:
			return Market(symbol[:2]), symbol[2:]
		}
	}
	return "", symbol
}

// Quote represents a real-time quote for an A-share.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Open          decimal.Decimal `json:"open"`
	PreClose      decimal.Decimal `json:"pre_close"`
	Price         decimal.Decimal `json:"price"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        int64           `json:"volume"`
	Amount        decimal.Decimal `json:"amount"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Headline is a news item about the subject stock.
type Headline struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
}

// ReferenceData is everything fetched before the first stage runs.
type ReferenceData struct {
	Quote     *Quote     `json:"quote"`
	Headlines []Headline `json:"headlines,omitempty"`
}
