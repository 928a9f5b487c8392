// Package server exposes the read-only ops surface: health, status, the
// alert log, and a live WebSocket alert stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calweaver/whalebot/internal/server/handler"
	"github.com/calweaver/whalebot/internal/server/middleware"
	"github.com/calweaver/whalebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Alerts may be
// nil; the route is then not registered.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
	Alerts *handler.AlertsHandler
}

// Server is the ops HTTP + WebSocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, auth) in place.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check stays reachable without auth for load balancer probes.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	authed := middleware.Auth(cfg.APIKey)
	mux.Handle("GET /api/status", authed(http.HandlerFunc(handlers.Status.GetStatus)))
	if handlers.Alerts != nil {
		mux.Handle("GET /api/alerts", authed(http.HandlerFunc(handlers.Alerts.ListAlerts)))
	}
	if wsHub != nil {
		mux.Handle("GET /ws", authed(http.HandlerFunc(wsHub.HandleWS)))
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("ops server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("ops server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
