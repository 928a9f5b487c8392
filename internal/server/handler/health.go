package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthCheck responds with a minimal liveness payload. It carries no state
// beyond uptime so load balancers can poll it cheaply.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "whalebot",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
