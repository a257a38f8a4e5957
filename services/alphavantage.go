package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"stock-council/models"
	"stock-council/observability"
)

// AlphaVantageService fetches A-share quotes from Alpha Vantage. The API
// key normally comes with the run; a configured key is the fallback.
type AlphaVantageService struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

// NewAlphaVantageService creates a new AlphaVantageService instance
func NewAlphaVantageService(baseURL, apiKey string, timeout time.Duration) *AlphaVantageService {
	return &AlphaVantageService{
		client:  resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (s *AlphaVantageService) Name() string { return BreakerAlphaVantage }

// QuoteResponse represents a quote from Alpha Vantage
type QuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		PrevClose     string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// alphaVantageSymbol maps "sh600519" to "600519.SHH" and "sz000001" to "000001.SHZ"
func alphaVantageSymbol(symbol string) string {
	market, code := models.SplitSymbol(symbol)
	switch market {
	case models.MarketShanghai:
		return code + ".SHH"
	case models.MarketShenzhen:
		return code + ".SHZ"
	}
	return strings.ToUpper(code)
}

// GetQuote returns the latest quote for a symbol, or nil, nil when Alpha
// Vantage has no data for it
func (s *AlphaVantageService) GetQuote(ctx context.Context, symbol, credential string) (*models.Quote, error) {
	apiKey := credential
	if apiKey == "" {
		apiKey = s.apiKey
	}
	if err := requireKey(BreakerAlphaVantage, apiKey); err != nil {
		return nil, err
	}

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerAlphaVantage, "quote")
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerAlphaVantage, "quote")

	quote, err := WithCircuitBreaker(ctx, BreakerAlphaVantage, func() (*models.Quote, error) {
		var quoteResp QuoteResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"function": "GLOBAL_QUOTE",
				"symbol":   alphaVantageSymbol(symbol),
				"apikey":   apiKey,
			}).
			SetResult(&quoteResp).
			Get(s.baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch quote: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, &APIError{Service: BreakerAlphaVantage, Operation: "quote", StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 200)}
		}

		switch {
		case quoteResp.ErrorMessage != "":
			return nil, nil
		case quoteResp.Note != "":
			return nil, &APIError{Service: BreakerAlphaVantage, Operation: "quote", StatusCode: http.StatusTooManyRequests, Body: quoteResp.Note}
		case quoteResp.Information != "":
			return nil, &APIError{Service: BreakerAlphaVantage, Operation: "quote", StatusCode: http.StatusUnauthorized, Body: quoteResp.Information}
		}
		return quoteFromAlphaVantage(symbol, quoteResp), nil
	})
	if err != nil {
		metrics.RecordExternalAPIError(BreakerAlphaVantage, "quote", categorizeAPIError(err))
		return nil, err
	}
	return quote, nil
}

func quoteFromAlphaVantage(symbol string, resp QuoteResponse) *models.Quote {
	gq := resp.GlobalQuote
	if gq.Symbol == "" || gq.Price == "" {
		return nil
	}

	var volume int64
	if gq.Volume != "" {
		v, err := strconv.ParseInt(gq.Volume, 10, 64)
		if err != nil {
			observability.Warn("failed to parse volume", "symbol", symbol, "volume", gq.Volume, "error", err)
		}
		volume = v
	}

	ts, err := time.ParseInLocation("2006-01-02", gq.LatestDay, shanghai)
	if err != nil {
		ts = time.Now()
	}

	price := parseDecimal(gq.Price)
	return &models.Quote{
		Symbol:        symbol,
		Name:          gq.Symbol,
		Open:          parseDecimal(gq.Open),
		PreClose:      parseDecimal(gq.PrevClose),
		Price:         price,
		High:          parseDecimal(gq.High),
		Low:           parseDecimal(gq.Low),
		Volume:        volume,
		Amount:        price.Mul(decimal.NewFromInt(volume)),
		Change:        parseDecimal(gq.Change),
		ChangePercent: parseDecimal(strings.TrimSuffix(gq.ChangePercent, "%")),
		Timestamp:     ts,
	}
}
