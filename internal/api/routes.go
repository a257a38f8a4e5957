package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-council/config"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Long-lived, so outside the request timeout
		r.Get("/ws", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			if cfg.HTTP.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
			}

			// Health check
			r.Get("/health", h.HandleHealth)

			// Run lifecycle
			r.Get("/state", h.HandleGetState)
			r.Post("/run", h.HandleStartRun)
			r.Post("/reset", h.HandleReset)

			// Participant configuration
			r.Get("/config", h.HandleGetConfig)
			r.Put("/config/{role}", h.HandleUpdateConfig)

			// History
			r.Route("/history", func(r chi.Router) {
				r.Get("/", h.HandleGetHistory)
				r.Delete("/", h.HandleClearHistory)
				r.Delete("/{id}", h.HandleDeleteHistory)
				r.Post("/{id}/restore", h.HandleRestoreHistory)
			})
		})
	})

	return r
}

// CORSMiddleware returns CORS middleware with the specified allowed origins
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
