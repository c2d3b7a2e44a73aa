// Package server exposes the robot's operator API: health, status, position
// and trade snapshots, plus Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradeforge/robotengine/internal/server/handler"
	"github.com/tradeforge/robotengine/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // if empty, authentication is disabled
}

// Server is the headless HTTP API server for the robot engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered: the health check, the
// robot snapshot endpoints and the metrics endpoint. Requests flow through
// logging and optional API-key auth middleware.
func New(cfg Config, source handler.RobotSource, registry *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	health := handler.NewHealthHandler()
	robotHandler := handler.NewRobotHandler(source)

	mux.HandleFunc("GET /api/health", health.HealthCheck)
	mux.HandleFunc("GET /api/status", robotHandler.GetStatus)
	mux.HandleFunc("GET /api/positions", robotHandler.ListPositions)
	mux.HandleFunc("GET /api/alerts", robotHandler.ListAlerts)
	mux.HandleFunc("GET /api/trades", robotHandler.ListTrades)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
