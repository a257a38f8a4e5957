package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"stock-council/models"
	"stock-council/observability"
)

var newsDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(\s+\d{2}:\d{2})?`)

// SinaNewsService scrapes the per-stock news list from Sina Finance.
type SinaNewsService struct {
	client *resty.Client
	limit  int
}

// NewSinaNewsService creates a SinaNewsService against baseURL
func NewSinaNewsService(baseURL string, limit int, timeout time.Duration) *SinaNewsService {
	if limit <= 0 {
		limit = 10
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; stock-council/1.0)")
	return &SinaNewsService{client: client, limit: limit}
}

// GetHeadlines returns up to limit recent headlines for a normalized symbol
func (s *SinaNewsService) GetHeadlines(ctx context.Context, symbol string) ([]models.Headline, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerSinaNews, "headlines")
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerSinaNews, "headlines")

	headlines, err := WithCircuitBreaker(ctx, BreakerSinaNews, func() ([]models.Headline, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			Get(fmt.Sprintf("/corp/go.php/vCB_AllNewsStock/symbol/%s.phtml", symbol))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch news: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, &APIError{Service: BreakerSinaNews, Operation: "headlines", StatusCode: resp.StatusCode()}
		}

		body, err := simplifiedchinese.GBK.NewDecoder().Bytes(resp.Body())
		if err != nil {
			return nil, fmt.Errorf("failed to decode GBK payload: %w", err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML: %w", err)
		}
		return parseHeadlines(doc, s.limit), nil
	})
	if err != nil {
		metrics.RecordExternalAPIError(BreakerSinaNews, "headlines", categorizeAPIError(err))
		return nil, err
	}
	return headlines, nil
}

// parseHeadlines reads the ".datelist" block, where each link is preceded
// by its publication date as bare text.
func parseHeadlines(doc *goquery.Document, limit int) []models.Headline {
	headlines := make([]models.Headline, 0, limit)
	doc.Find(".datelist ul a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		title := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		if title == "" || !ok {
			return true
		}

		var published string
		if prev := a.Nodes[0].PrevSibling; prev != nil {
			published = newsDatePattern.FindString(prev.Data)
		}

		headlines = append(headlines, models.Headline{
			Title:       title,
			URL:         strings.TrimSpace(href),
			PublishedAt: published,
		})
		return len(headlines) < limit
	})
	return headlines
}
