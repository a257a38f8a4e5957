package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"stock-council/config"
	"stock-council/history"
	"stock-council/internal/app"
	"stock-council/models"
	"stock-council/observability"
	"stock-council/workflow"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// Handler handles HTTP API requests
type Handler struct {
	app      *app.App
	cfg      *config.Config
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{
		app: application,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.HTTP.CORSAllowedOrigins),
		},
	}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Health(r.Context()))
}

// HandleGetState returns the current run state. Credentials are never included.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Session().State())
}

// RunRequest starts an analysis. APIKeys maps provider names to keys and
// is only held in memory for the run.
type RunRequest struct {
	Symbol  string            `json:"symbol"`
	APIKeys map[string]string `json:"apiKeys"`
}

// HandleStartRun launches a run and returns its first state. The run
// continues in the background; follow it on the websocket or by polling.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Symbol = r.FormValue("symbol")
	}

	state, err := h.app.Session().StartRun(req.Symbol, req.APIKeys)
	if errors.Is(err, workflow.ErrRunInProgress) {
		h.jsonStatus(w, state, http.StatusConflict)
		return
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusAccepted
	if !state.Status.Active() {
		status = http.StatusOK
	}
	h.jsonStatus(w, state, status)
}

// HandleReset abandons any run and returns to idle
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Session().Reset(r.Context()))
}

// HandleGetConfig returns every participant's configuration
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Session().State().AgentConfigs)
}

// HandleUpdateConfig replaces one participant's configuration
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	role := models.Role(chi.URLParam(r, "role"))

	var cfg models.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	state, err := h.app.Session().UpdateConfig(role, cfg)
	switch {
	case errors.Is(err, workflow.ErrUnknownRole):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrConfigLocked):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		h.jsonResponse(w, state.AgentConfigs[role])
	}
}

// HandleGetHistory returns past runs, newest first
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Session().History(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	limit := h.ParseLimitParam(r, len(items))
	if limit < len(items) {
		items = items[:limit]
	}
	h.jsonResponse(w, items)
}

// HandleDeleteHistory removes one record
func (h *Handler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.app.Session().DeleteHistory(r.Context(), id); err != nil {
		h.historyError(w, err)
		return
	}
	h.jsonResponse(w, StatusResponse{Status: "deleted"})
}

// HandleClearHistory removes every record
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Session().ClearHistory(r.Context()); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, StatusResponse{Status: "cleared"})
}

// HandleRestoreHistory makes a past run the current state
func (h *Handler) HandleRestoreHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := h.app.Session().RestoreHistory(r.Context(), id)
	if err != nil {
		h.historyError(w, err)
		return
	}
	h.jsonResponse(w, state)
}

func (h *Handler) historyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrRecordNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workflow.ErrRunInProgress):
		h.jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleWebSocket streams the run state. The current state is sent on
// connect, then every change.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics := observability.GetMetrics()
	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	session := h.app.Session()
	id, updates, unsubscribe := session.Subscribe()
	defer unsubscribe()
	logger := observability.WithContext(r.Context()).With("subscriber", id.String())
	logger.Debug("websocket client connected")

	// The client sends nothing we act on; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeState(conn, session.State()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("websocket client disconnected")
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			if err := writeState(conn, state); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func writeState(conn *websocket.Conn, state models.RunState) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(state)
}

// originChecker accepts any origin for "*" and otherwise only the listed ones
func originChecker(allowed string) func(r *http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(r *http.Request) bool { return true }
	}
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowed, ",") {
		origins[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins[origin]
	}
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, data, http.StatusOK)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonStatus(w, map[string]string{"error": message}, status)
}

// StatusResponse represents a status response
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
