package handler

import (
	"log/slog"
	"net/http"

	"github.com/calweaver/whalebot/internal/domain"
)

// AlertsHandler serves the dispatched-alert audit log.
type AlertsHandler struct {
	alerts domain.AlertStore
	logger *slog.Logger
}

// NewAlertsHandler creates an AlertsHandler.
func NewAlertsHandler(alerts domain.AlertStore, logger *slog.Logger) *AlertsHandler {
	return &AlertsHandler{
		alerts: alerts,
		logger: logger.With(slog.String("handler", "alerts")),
	}
}

// ListAlerts responds with recent alerts, newest first, paginated via
// limit/offset query parameters.
// GET /api/alerts
func (h *AlertsHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	alerts, err := h.alerts.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.Error("list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
