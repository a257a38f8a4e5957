package app

import (
	"context"
	"fmt"

	"stock-council/agents"
	"stock-council/config"
	"stock-council/history"
	"stock-council/models"
	"stock-council/observability"
	"stock-council/services"
	"stock-council/snapshot"
	"stock-council/storage"
	"stock-council/workflow"
)

// App holds the wired application: storage, providers, the engine and the
// session that owns the run state.
type App struct {
	cfg     *config.Config
	kv      storage.KV
	llms    *services.LLMRegistry
	session *Session
	health  *HealthCache
	cancel  context.CancelFunc
}

type overrides struct {
	kv      storage.KV
	llms    []services.LLMProvider
	quotes  services.QuoteProvider
	news    services.NewsProvider
	metrics *observability.Metrics
}

// Option replaces a collaborator Bootstrap would otherwise build from config
type Option func(*overrides)

// WithStorage uses kv instead of opening cfg.Storage.Backend. App.Close
// still closes it.
func WithStorage(kv storage.KV) Option {
	return func(o *overrides) { o.kv = kv }
}

// WithLLMProviders replaces the configured model providers
func WithLLMProviders(providers ...services.LLMProvider) Option {
	return func(o *overrides) { o.llms = providers }
}

// WithQuoteProvider replaces the configured quote provider
func WithQuoteProvider(q services.QuoteProvider) Option {
	return func(o *overrides) { o.quotes = q }
}

// WithNewsProvider replaces the headline provider, regardless of NewsEnabled
func WithNewsProvider(n services.NewsProvider) Option {
	return func(o *overrides) { o.news = n }
}

// WithMetrics records into m instead of the global metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(o *overrides) { o.metrics = m }
}

// Bootstrap wires every component from cfg and seeds the session from the
// persisted snapshot.
func Bootstrap(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &overrides{}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observability.GetMetrics()
	}

	services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.CircuitBreakerConfig{
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
	}))

	defaults, err := agents.LoadConfigs(cfg.Agents.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent configs: %w", err)
	}

	kv := o.kv
	if kv == nil {
		kv, err = OpenStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	instrumented := storage.Instrument(kv, cfg.Storage.Backend, o.metrics)

	snapshots := snapshot.NewStore(instrumented, snapshot.Options{
		Key:      cfg.Snapshot.Key,
		Version:  cfg.Snapshot.Version,
		Expiry:   cfg.Snapshot.Expiry,
		Defaults: defaults,
	})
	ledger := history.NewLedger(instrumented, history.Options{
		Key:      cfg.History.Key,
		Version:  cfg.History.Version,
		Limit:    cfg.History.Limit,
		Defaults: defaults,
	})

	llms := services.NewLLMRegistry(o.llms...)
	if o.llms == nil {
		llms = buildLLMRegistry(ctx, cfg)
	}

	quotes := o.quotes
	if quotes == nil {
		quotes = buildQuoteProvider(cfg)
	}
	news := o.news
	if news == nil && cfg.Quotes.NewsEnabled {
		news = services.NewSinaNewsService(cfg.Quotes.NewsBaseURL, cfg.Quotes.NewsLimit, cfg.Quotes.RequestTimeout)
	}

	engine := workflow.NewEngine(
		services.NewReferenceDataService(quotes, news),
		agents.NewContextFormatter(),
		workflow.Stages{
			Analysts: agents.NewAnalystStage(llms),
			Managers: agents.NewManagerStage(llms),
			Risk:     agents.NewRiskStage(llms),
			Decision: agents.NewDecisionStage(llms),
		},
		workflow.WithSnapshotClearer(snapshots),
		workflow.WithQuoteCredentialKey(cfg.Quotes.CredentialKey),
		workflow.WithMetrics(o.metrics),
	)

	// Runs outlive the request that started them; Close cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session := NewSession(runCtx, engine, snapshots, ledger, snapshots.InitialState(ctx), WithSessionMetrics(o.metrics))

	observability.Info("Application initialized",
		"storage", cfg.Storage.Backend,
		"quotes", quotes.Name(),
		"news", news != nil,
		"providers", llms.Names(),
		"status", string(session.State().Status))

	return &App{
		cfg:     cfg,
		kv:      kv,
		llms:    llms,
		session: session,
		health:  NewHealthCache(DefaultHealthCacheTTL),
		cancel:  cancel,
	}, nil
}

func buildLLMRegistry(ctx context.Context, cfg *config.Config) *services.LLMRegistry {
	lc := cfg.LLM
	registry := services.NewLLMRegistry(
		services.NewOpenAIService(lc.OpenAIBaseURL, lc.MaxTokens, lc.RequestTimeout),
		services.NewDeepSeekService(lc.DeepSeekBaseURL, lc.MaxTokens, lc.RequestTimeout),
		services.NewQwenService(lc.QwenBaseURL, lc.MaxTokens, lc.RequestTimeout),
		services.NewGeminiService(lc.GeminiBaseURL, lc.MaxTokens, lc.RequestTimeout),
	)

	if !cfg.HasBedrock() {
		observability.Info("AWS_REGION not set, bedrock provider disabled")
		return registry
	}
	bedrock, err := services.NewBedrockService(ctx, lc.AWSRegion, lc.MaxTokens, lc.RequestTimeout)
	if err != nil {
		observability.Warn("Failed to initialize bedrock provider", "error", err)
		return registry
	}
	registry.Register(bedrock)
	return registry
}

func buildQuoteProvider(cfg *config.Config) services.QuoteProvider {
	qc := cfg.Quotes
	if qc.Provider == config.QuoteProviderAlphaVantage {
		return services.NewAlphaVantageService(qc.AlphaVantageBaseURL, qc.AlphaVantageAPIKey, qc.RequestTimeout)
	}
	return services.NewSinaQuoteService(qc.SinaBaseURL, qc.RequestTimeout)
}

// Session returns the run session
func (a *App) Session() *Session {
	return a.session
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config {
	return a.cfg
}

// Providers lists the registered model provider names
func (a *App) Providers() []string {
	return a.llms.Names()
}

// HealthReport is the payload of the health endpoint
type HealthReport struct {
	Status          string                                   `json:"status"`
	Storage         string                                   `json:"storage"`
	StorageBackend  string                                   `json:"storage_backend"`
	StorageError    string                                   `json:"storage_error,omitempty"`
	RunStatus       models.Status                            `json:"run_status"`
	Providers       []string                                 `json:"providers"`
	CircuitBreakers map[string]services.CircuitBreakerStatus `json:"circuit_breakers"`
}

// Health probes storage (cached for a short TTL) and reports breaker state.
// Status is "degraded" when storage is unreachable or any breaker is open.
func (a *App) Health(ctx context.Context) HealthReport {
	valid, err := a.health.Get()
	if !valid {
		err = probeStorage(ctx, a.kv)
		a.health.Set(err)
	}

	report := HealthReport{
		Status:          "ok",
		Storage:         "connected",
		StorageBackend:  a.cfg.Storage.Backend,
		RunStatus:       a.session.State().Status,
		Providers:       a.llms.Names(),
		CircuitBreakers: services.GetGlobalRegistry().Status(),
	}
	if err != nil {
		report.Status = "degraded"
		report.Storage = "disconnected"
		report.StorageError = err.Error()
	}
	for _, cb := range report.CircuitBreakers {
		if cb.State == "open" {
			report.Status = "degraded"
			break
		}
	}
	return report
}

// Close waits for a background run to finish, cancelling it if ctx expires
// first, and closes storage.
func (a *App) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.session.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		observability.Warn("Shutdown deadline reached, cancelling the active run")
		a.cancel()
		<-done
	}
	a.cancel()

	if err := a.kv.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
