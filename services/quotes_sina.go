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
	"golang.org/x/text/encoding/simplifiedchinese"

	"stock-council/models"
	"stock-council/observability"
)

// Sina answers with one line per symbol:
//
//	var hq_str_sh600519="NAME,open,preClose,price,high,low,bid,ask,volume,amount,...,date,time,...";
//
// An unknown symbol yields an empty string between the quotes.
const (
	sinaFieldName     = 0
	sinaFieldOpen     = 1
	sinaFieldPreClose = 2
	sinaFieldPrice    = 3
	sinaFieldHigh     = 4
	sinaFieldLow      = 5
	sinaFieldVolume   = 8
	sinaFieldAmount   = 9
	sinaFieldDate     = 30
	sinaFieldTime     = 31
	sinaMinFields     = 32
)

var shanghai = time.FixedZone("CST", 8*60*60)

// SinaQuoteService fetches real-time A-share quotes from hq.sinajs.cn.
type SinaQuoteService struct {
	client *resty.Client
}

// NewSinaQuoteService creates a SinaQuoteService against baseURL
func NewSinaQuoteService(baseURL string, timeout time.Duration) *SinaQuoteService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Referer", "https://finance.sina.com.cn").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; stock-council/1.0)")
	return &SinaQuoteService{client: client}
}

func (s *SinaQuoteService) Name() string { return BreakerSina }

// GetQuote returns the quote for a normalized symbol such as "sh600519".
// It returns nil, nil when Sina does not know the symbol.
func (s *SinaQuoteService) GetQuote(ctx context.Context, symbol, _ string) (*models.Quote, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerSina, "quote")
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerSina, "quote")

	quote, err := WithCircuitBreaker(ctx, BreakerSina, func() (*models.Quote, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			Get("/list=" + symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch quote: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, &APIError{Service: BreakerSina, Operation: "quote", StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 200)}
		}

		body, err := simplifiedchinese.GBK.NewDecoder().Bytes(resp.Body())
		if err != nil {
			return nil, fmt.Errorf("failed to decode GBK payload: %w", err)
		}
		return parseSinaQuote(symbol, string(body))
	})
	if err != nil {
		metrics.RecordExternalAPIError(BreakerSina, "quote", categorizeAPIError(err))
		return nil, err
	}
	return quote, nil
}

func parseSinaQuote(symbol, payload string) (*models.Quote, error) {
	start := strings.IndexByte(payload, '"')
	end := strings.LastIndexByte(payload, '"')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("unexpected quote payload for %s", symbol)
	}
	raw := strings.TrimSpace(payload[start+1 : end])
	if raw == "" {
		return nil, nil
	}

	fields := strings.Split(raw, ",")
	if len(fields) < sinaMinFields {
		return nil, fmt.Errorf("quote payload for %s has %d fields, want at least %d", symbol, len(fields), sinaMinFields)
	}

	open := parseDecimal(fields[sinaFieldOpen])
	preClose := parseDecimal(fields[sinaFieldPreClose])
	price := parseDecimal(fields[sinaFieldPrice])
	volume, _ := strconv.ParseInt(strings.TrimSpace(fields[sinaFieldVolume]), 10, 64)

	// A suspended share reports zero for today's price.
	if price.IsZero() {
		price = preClose
	}

	change := price.Sub(preClose)
	changePct := decimal.Zero
	if !preClose.IsZero() {
		changePct = change.Div(preClose).Mul(decimal.NewFromInt(100)).Round(2)
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05",
		strings.TrimSpace(fields[sinaFieldDate])+" "+strings.TrimSpace(fields[sinaFieldTime]), shanghai)
	if err != nil {
		ts = time.Now()
	}

	return &models.Quote{
		Symbol:        symbol,
		Name:          strings.TrimSpace(fields[sinaFieldName]),
		Open:          open,
		PreClose:      preClose,
		Price:         price,
		High:          parseDecimal(fields[sinaFieldHigh]),
		Low:           parseDecimal(fields[sinaFieldLow]),
		Volume:        volume,
		Amount:        parseDecimal(fields[sinaFieldAmount]),
		Change:        change,
		ChangePercent: changePct,
		Timestamp:     ts,
	}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
