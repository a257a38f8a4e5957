// Package e2e provides end-to-end testing infrastructure for stock-council.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock-council/config"
	"stock-council/e2e/mocks"
	"stock-council/internal/api"
	"stock-council/internal/app"
	"stock-council/models"
)

// TestHarness provides the infrastructure for running E2E tests.
// Every external API is served by the mock server and state lives in a
// file store under the test's temp dir, so nothing outside the process is
// required.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	app        *app.App
	router     http.Handler
	config     *config.Config
	dataDir    string
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &TestHarness{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		dataDir: t.TempDir(),
	}
}

// Setup initializes all test dependencies.
func (h *TestHarness) Setup() error {
	h.mockServer = mocks.NewMockServer()
	h.config = h.createTestConfig()
	return h.start()
}

func (h *TestHarness) start() error {
	var err error
	h.app, err = app.Bootstrap(h.ctx, h.config)
	if err != nil {
		return fmt.Errorf("failed to bootstrap application: %w", err)
	}

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)
	return nil
}

// Restart closes the application and boots a new one over the same data
// directory, as a process restart would.
func (h *TestHarness) Restart() error {
	if err := h.app.Close(h.ctx); err != nil {
		return fmt.Errorf("failed to close application: %w", err)
	}
	return h.start()
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.app != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		h.app.Close(closeCtx)
		cancel()
	}

	if h.cancel != nil {
		h.cancel()
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// StartRun posts a run for symbol with keys for every mocked vendor.
func (h *TestHarness) StartRun(symbol string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(api.RunRequest{
		Symbol:  symbol,
		APIKeys: map[string]string{"deepseek": "sk-test", "openai": "sk-test"},
	})
	return h.DoRequest(http.MethodPost, "/api/run", string(body))
}

// State fetches the current run state.
func (h *TestHarness) State() models.RunState {
	h.t.Helper()
	resp := h.DoRequest(http.MethodGet, "/api/state", "")
	if resp.Code != http.StatusOK {
		h.t.Fatalf("GET /api/state: status %d: %s", resp.Code, resp.Body.String())
	}
	var state models.RunState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		h.t.Fatalf("failed to decode state: %v", err)
	}
	return state
}

// WaitForSettled polls until the run leaves the active statuses.
func (h *TestHarness) WaitForSettled(timeout time.Duration) models.RunState {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		state := h.State()
		if !state.Status.Active() {
			return state
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("run still %s after %s", state.Status, timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// History fetches the history list.
func (h *TestHarness) History() []models.HistoryRecord {
	h.t.Helper()
	resp := h.DoRequest(http.MethodGet, "/api/history", "")
	if resp.Code != http.StatusOK {
		h.t.Fatalf("GET /api/history: status %d: %s", resp.Code, resp.Body.String())
	}
	var items []models.HistoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		h.t.Fatalf("failed to decode history: %v", err)
	}
	return items
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()

	cfg.Storage.Backend = config.BackendFile
	cfg.Storage.DataDir = h.dataDir

	cfg.Quotes.SinaBaseURL = h.mockServer.URL()
	cfg.Quotes.NewsEnabled = true
	cfg.Quotes.NewsBaseURL = h.mockServer.URL()

	cfg.LLM.DeepSeekBaseURL = h.mockServer.VendorURL("deepseek")
	cfg.LLM.OpenAIBaseURL = h.mockServer.VendorURL("openai")
	cfg.LLM.QwenBaseURL = h.mockServer.VendorURL("qwen")
	cfg.LLM.RequestTimeout = 10 * time.Second

	return cfg
}
