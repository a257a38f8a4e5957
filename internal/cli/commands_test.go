package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"stock-council/config"
	"stock-council/internal/app"
	"stock-council/models"
	"stock-council/observability"
	"stock-council/services"
	"stock-council/storage"
)

type mockLLM struct {
	name  string
	reply string
}

func (m *mockLLM) Name() string { return m.name }

func (m *mockLLM) Complete(ctx context.Context, req services.CompletionRequest) (string, error) {
	return m.reply, nil
}

type mockQuotes struct{}

func (mockQuotes) Name() string { return "mock" }

func (mockQuotes) GetQuote(ctx context.Context, symbol, credential string) (*models.Quote, error) {
	return &models.Quote{Symbol: symbol, Name: "Kweichow Moutai", Price: decimal.NewFromInt(1650)}, nil
}

// testBootstrap shares one memory store across invocations so history
// written by one command is visible to the next.
func testBootstrap(kv storage.KV) Bootstrapper {
	return func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		return app.Bootstrap(ctx, cfg,
			app.WithStorage(kv),
			app.WithLLMProviders(
				&mockLLM{name: "deepseek", reply: "Valuation is stretched."},
				&mockLLM{name: "openai", reply: "Weighing the panel.\nDECISION: BUY"},
			),
			app.WithQuoteProvider(mockQuotes{}),
			app.WithMetrics(observability.NewMetrics(prometheus.NewRegistry())),
		)
	}
}

// nopCloser keeps the shared store open when each command closes its app.
type nopCloser struct {
	storage.KV
}

func (nopCloser) Close() error { return nil }

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("NEWS_ENABLED", "false")
	t.Setenv("AGENT_CONFIG_FILE", "")
}

func execute(t *testing.T, kv storage.KV, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(testBootstrap(kv))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	setupEnv(t)
	kv := nopCloser{storage.NewMemoryStore()}

	out, err := execute(t, kv, "analyze", "600519", "--key", "deepseek=k1", "--key", "openai=k2")
	if err != nil {
		t.Fatalf("analyze error = %v\n%s", err, out)
	}
	for _, want := range []string{"sh600519", "Kweichow Moutai", "general_manager", "Valuation is stretched.", "BUY"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, kv, "history", "list")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if !strings.Contains(out, "sh600519") || !strings.Contains(out, "buy") {
		t.Errorf("history list = %q, want the completed run", out)
	}
}

func TestAnalyze_InvalidSymbol(t *testing.T) {
	setupEnv(t)
	kv := nopCloser{storage.NewMemoryStore()}

	out, err := execute(t, kv, "analyze", "12345")
	if err == nil {
		t.Fatalf("analyze should fail for an invalid symbol:\n%s", out)
	}

	out, _ = execute(t, kv, "history", "list")
	if !strings.Contains(out, "No past runs") {
		t.Errorf("invalid symbols must not be recorded, got %q", out)
	}
}

func TestAnalyze_RequiresSymbol(t *testing.T) {
	setupEnv(t)
	if _, err := execute(t, nopCloser{storage.NewMemoryStore()}, "analyze"); err == nil {
		t.Error("analyze without a symbol should fail")
	}
}

func TestHistoryCommands(t *testing.T) {
	setupEnv(t)
	kv := nopCloser{storage.NewMemoryStore()}
	ctx := context.Background()

	for _, symbol := range []string{"600519", "000001"} {
		if _, err := execute(t, kv, "analyze", symbol); err != nil {
			t.Fatalf("analyze %s error = %v", symbol, err)
		}
	}

	a, err := testBootstrap(kv)(ctx, config.NewTestConfig())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	items, err := a.Session().History(ctx)
	a.Close(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("History() = %d items, %v, want 2", len(items), err)
	}

	out, err := execute(t, kv, "history", "list", "--limit", "1")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if strings.Count(out, "\n") != 2 {
		t.Errorf("--limit 1 should print the title and one run, got %q", out)
	}

	out, err = execute(t, kv, "history", "show", items[0].ID)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if !strings.Contains(out, items[0].StockSymbol) || !strings.Contains(out, "macro_analyst") {
		t.Errorf("history show = %q", out)
	}

	if _, err := execute(t, kv, "history", "show", "missing"); err == nil {
		t.Error("history show of an unknown id should fail")
	}

	if _, err := execute(t, kv, "history", "delete", items[0].ID); err != nil {
		t.Fatalf("history delete error = %v", err)
	}
	if _, err := execute(t, kv, "history", "delete", items[0].ID); err == nil {
		t.Error("deleting twice should fail")
	}

	if _, err := execute(t, kv, "history", "clear"); err != nil {
		t.Fatalf("history clear error = %v", err)
	}
	out, _ = execute(t, kv, "history", "list")
	if !strings.Contains(out, "No past runs") {
		t.Errorf("history after clear = %q", out)
	}
}

func TestVersion(t *testing.T) {
	// An invalid backend would fail the root pre-run; version must not load config.
	t.Setenv("STORAGE_BACKEND", "etcd")

	out, err := execute(t, storage.NewMemoryStore(), "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "stock-council "+Version) {
		t.Errorf("version = %q", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "etcd")

	_, err := execute(t, storage.NewMemoryStore(), "history", "list")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error = %v, want invalid configuration", err)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "env-deepseek")
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("ALPHAVANTAGE_API_KEY", "env-av")
	t.Setenv("QWEN_API_KEY", "")

	got := credentials(
		map[string]string{"OpenAI": "flag-openai"},
		[]string{"deepseek", "openai", "qwen"},
		"alphavantage",
	)
	want := map[string]string{
		"alphavantage": "env-av",
		"deepseek":     "env-deepseek",
		"openai":       "flag-openai",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("credentials() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedRoles(t *testing.T) {
	outputs := map[models.Role]string{
		models.RoleGeneralManager: "",
		"zeta":                    "",
		models.RoleMacroAnalyst:   "",
		"alpha":                   "",
		models.RoleSystemicRisk:   "",
	}
	want := []models.Role{models.RoleMacroAnalyst, models.RoleSystemicRisk, models.RoleGeneralManager, "alpha", "zeta"}
	if diff := cmp.Diff(want, sortedRoles(outputs)); diff != "" {
		t.Errorf("sortedRoles() mismatch (-want +got):\n%s", diff)
	}
}

func TestServeListener(t *testing.T) {
	setupEnv(t)
	cfg := config.NewTestConfig()
	a, err := testBootstrap(storage.NewMemoryStore())(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	defer a.Close(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, ln, a, cfg) }()

	url := "http://" + ln.Addr().String() + "/api/health"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveListener() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
