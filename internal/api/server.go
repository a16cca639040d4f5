// Package api serves the hierarchy query and override surface, health
// probes and prometheus metrics over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker, metrics http.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, health, metrics, cfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	read := time.Duration(s.config.ReadTimeoutSeconds) * time.Second
	if read <= 0 {
		read = 30 * time.Second
	}
	write := time.Duration(s.config.WriteTimeoutSeconds) * time.Second
	if write <= 0 {
		write = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
	logger.Info("api: listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
