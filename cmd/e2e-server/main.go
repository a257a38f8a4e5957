// Package main provides a standalone HTTP server for E2E testing.
// It serves the same routes and handlers as "stock-council serve" but
// with in-process quote, news and LLM providers, so browser tests need
// no network access and no API keys.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-council/config"
	"stock-council/internal/api"
	"stock-council/internal/app"
	"stock-council/observability"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)
	observability.InitMetrics()

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	delay := 300 * time.Millisecond
	if v := os.Getenv("E2E_LLM_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			observability.Fatal("invalid E2E_LLM_DELAY", "value", v, "error", err)
		}
		delay = d
	}

	cfg := config.NewTestConfig()
	cfg.HTTP.Addr = ":" + port

	// E2E_DATA_DIR keeps state across server restarts; memory otherwise
	if dir := os.Getenv("E2E_DATA_DIR"); dir != "" {
		cfg.Storage.Backend = config.BackendFile
		cfg.Storage.DataDir = dir
	}

	ctx := context.Background()

	application, err := app.Bootstrap(ctx, cfg,
		app.WithLLMProviders(
			NewMockLLM("deepseek", "", delay),
			NewMockLLM("qwen", "", delay),
			NewMockLLM("gemini", "", delay),
			NewMockLLM("openai", "BUY", delay),
		),
		app.WithQuoteProvider(NewMockQuoteService()),
		app.WithNewsProvider(MockNewsService{}),
	)
	if err != nil {
		observability.Fatal("failed to initialize application", "error", err)
	}

	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}

	if err := application.Close(shutdownCtx); err != nil {
		observability.Warn("application did not close cleanly", "error", err)
	}
	observability.Info("E2E test server stopped")
}
