package handler

import (
	"net/http"
	"time"

	"github.com/calweaver/whalebot/internal/dispatch"
	"github.com/calweaver/whalebot/internal/pipeline"
)

// StatusHandler serves the worker's operational snapshot. The stat funcs are
// nil in server-only mode; the corresponding sections are then omitted.
type StatusHandler struct {
	mode       string
	startedAt  time.Time
	poller     func() pipeline.PollerStats
	dispatcher func() dispatch.Stats
}

// NewStatusHandler creates a StatusHandler. poller and dispatcher may be nil.
func NewStatusHandler(mode string, startedAt time.Time, poller func() pipeline.PollerStats, dispatcher func() dispatch.Stats) *StatusHandler {
	return &StatusHandler{
		mode:       mode,
		startedAt:  startedAt,
		poller:     poller,
		dispatcher: dispatcher,
	}
}

// GetStatus responds with uptime, run mode, and pipeline counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.poller != nil {
		body["poller"] = h.poller()
	}
	if h.dispatcher != nil {
		body["dispatcher"] = h.dispatcher()
	}
	writeJSON(w, http.StatusOK, body)
}
