// Package mocks provides HTTP mock servers for external APIs used in E2E tests.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// MockServer provides configurable mock responses for all external APIs.
// LLM vendors are told apart by the first path segment, so point each
// vendor's base URL at VendorURL(name).
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	quotes      map[string]SinaQuote // key: normalized symbol
	news        []NewsItem
	completions map[string]string // key: vendor

	// Error injection
	quoteStatus int
	newsStatus  int
	llmStatus   map[string]int
	llmDelay    time.Duration

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Body   string
}

// NewMockServer creates a new mock server with default responses.
func NewMockServer() *MockServer {
	m := &MockServer{
		quotes:      make(map[string]SinaQuote),
		completions: make(map[string]string),
		llmStatus:   make(map[string]int),
		requestLog:  make([]RequestLog, 0),
	}
	m.setDefaults()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// VendorURL returns the OpenAI-compatible base URL for one LLM vendor.
func (m *MockServer) VendorURL(vendor string) string {
	return m.server.URL + "/" + vendor + "/v1"
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP implements http.Handler to route requests to appropriate mock handlers.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   string(body),
	})
	m.mu.Unlock()

	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/list="):
		m.handleQuote(w, strings.TrimPrefix(path, "/list="))
	case strings.HasPrefix(path, "/corp/go.php/vCB_AllNewsStock/symbol/"):
		m.handleNews(w)
	case strings.HasSuffix(path, "/chat/completions"):
		vendor := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
		m.handleChat(w, vendor, body)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// CountRequests returns how many logged requests have a path containing substr.
func (m *MockServer) CountRequests(substr string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requestLog {
		if strings.Contains(r.Path, substr) {
			n++
		}
	}
	return n
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// SetQuote configures the quote for a normalized symbol such as sh600519.
func (m *MockServer) SetQuote(symbol string, q SinaQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = q
}

// SetQuoteStatus makes the quote endpoint answer with status. Zero restores normal answers.
func (m *MockServer) SetQuoteStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteStatus = status
}

// SetNews configures the news list.
func (m *MockServer) SetNews(items []NewsItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.news = items
}

// SetNewsStatus makes the news endpoint answer with status.
func (m *MockServer) SetNewsStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newsStatus = status
}

// SetCompletion configures the reply text of one LLM vendor.
func (m *MockServer) SetCompletion(vendor, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions[vendor] = content
}

// SetLLMStatus makes one vendor answer with an error status.
func (m *MockServer) SetLLMStatus(vendor string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmStatus[vendor] = status
}

// SetLLMDelay delays every chat response, keeping runs in flight for a while.
func (m *MockServer) SetLLMDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmDelay = d
}

func (m *MockServer) setDefaults() {
	m.quotes["sh600519"] = SinaQuote{
		Name: "贵州茅台", Open: "1688.00", PreClose: "1680.50", Price: "1701.20",
		High: "1710.00", Low: "1675.30", Volume: "2456789", Amount: "4178901234.00",
		Date: "2024-03-15", Time: "15:00:00",
	}
	m.quotes["sz000001"] = SinaQuote{
		Name: "平安银行", Open: "10.50", PreClose: "10.45", Price: "10.38",
		High: "10.56", Low: "10.30", Volume: "98765432", Amount: "1025678900.00",
		Date: "2024-03-15", Time: "15:00:00",
	}

	m.news = []NewsItem{
		{Date: "2024-03-15 09:30", Title: "Liquor makers rally on consumption data", URL: "https://finance.sina.com.cn/a.shtml"},
		{Date: "2024-03-14 18:02", Title: "Annual dividend plan announced", URL: "https://finance.sina.com.cn/b.shtml"},
	}

	m.completions["deepseek"] = "Fundamentals remain solid; margins expanded year on year."
	m.completions["openai"] = "The panel leans positive with contained risk.\nDECISION: BUY"
}

func (m *MockServer) handleQuote(w http.ResponseWriter, symbol string) {
	m.mu.RLock()
	status := m.quoteStatus
	q, ok := m.quotes[symbol]
	m.mu.RUnlock()

	if status != 0 {
		http.Error(w, "upstream unavailable", status)
		return
	}

	payload := ""
	if ok {
		fields := make([]string, 33)
		for i := range fields {
			fields[i] = "0"
		}
		fields[0], fields[1], fields[2], fields[3] = q.Name, q.Open, q.PreClose, q.Price
		fields[4], fields[5], fields[8], fields[9] = q.High, q.Low, q.Volume, q.Amount
		fields[30], fields[31], fields[32] = q.Date, q.Time, "00"
		payload = strings.Join(fields, ",")
	}
	m.writeGBK(w, "application/javascript", fmt.Sprintf("var hq_str_%s=\"%s\";\n", symbol, payload))
}

func (m *MockServer) handleNews(w http.ResponseWriter) {
	m.mu.RLock()
	status := m.newsStatus
	items := append([]NewsItem{}, m.news...)
	m.mu.RUnlock()

	if status != 0 {
		http.Error(w, "upstream unavailable", status)
		return
	}

	var sb strings.Builder
	sb.WriteString("<html><body><div class=\"datelist\"><ul>\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "&nbsp;&nbsp;&nbsp;&nbsp;%s&nbsp;&nbsp;<a target=\"_blank\" href=\"%s\">%s</a><br>\n", it.Date, it.URL, it.Title)
	}
	sb.WriteString("</ul></div></body></html>")
	m.writeGBK(w, "text/html; charset=gbk", sb.String())
}

func (m *MockServer) handleChat(w http.ResponseWriter, vendor string, body []byte) {
	m.mu.RLock()
	status := m.llmStatus[vendor]
	content, ok := m.completions[vendor]
	delay := m.llmDelay
	m.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 || !ok {
		if status == 0 {
			status = http.StatusNotFound
		}
		var resp APIErrorResponse
		resp.Error.Message = "mock failure for " + vendor
		resp.Error.Type = "server_error"
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
		return
	}

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(ChatCompletionResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: ChatUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	})
}

func (m *MockServer) writeGBK(w http.ResponseWriter, contentType, text string) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write([]byte(encoded))
}
