package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"stock-council/config"
	"stock-council/internal/api"
	"stock-council/internal/app"
	"stock-council/observability"
)

const shutdownTimeout = 10 * time.Second

// serve runs the API until ctx is cancelled, then drains connections.
// Websocket streams are long-lived so the server sets no write timeout;
// REST routes are bounded by the router's request timeout instead.
func serve(ctx context.Context, a *app.App, cfg *config.Config) error {
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	return serveListener(ctx, ln, a, cfg)
}

func serveListener(ctx context.Context, ln net.Listener, a *app.App, cfg *config.Config) error {
	handler := api.NewHandler(a, cfg)
	server := &http.Server{
		Handler:           api.NewRouter(handler, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	observability.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	observability.Info("HTTP server stopped")
	return nil
}
