// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/silohub/chat/internal/history"
)

// ============================================================================
// CONSTANTS
// ============================================================================

// DefaultAddr is the default listen address. The endpoint is local only.
const DefaultAddr = "127.0.0.1:9464"

// ============================================================================
// STATUS SOURCES
// ============================================================================

// HealthSource reports the history backend health.
type HealthSource interface {
	Health() history.Health
}

// LiveSource reports the number of running exchanges.
type LiveSource interface {
	Live() int
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string         `json:"status"`
	History       history.Health `json:"history"`
	LiveExchanges int            `json:"live_exchanges"`
	Uptime        string         `json:"uptime"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes Prometheus metrics and a health summary over HTTP.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	health   HealthSource
	live     LiveSource
	log      zerolog.Logger
	started  time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	router   *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithHealth sets the history health source.
func WithHealth(h HealthSource) Option {
	return func(s *Server) { s.health = h }
}

// WithLive sets the live exchange source.
func WithLive(l LiveSource) Option {
	return func(s *Server) { s.live = l }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "server").Logger() }
}

// NewServer creates a server for the metrics in gatherer. An empty addr uses
// DefaultAddr.
func NewServer(addr string, gatherer prometheus.Gatherer, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		addr:     addr,
		gatherer: gatherer,
		log:      zerolog.Nop(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = http.NewServeMux()
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.HandleFunc("/health", s.handleHealth)
}

// Handler returns the full handler including middleware.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.log),
	)(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.health != nil {
		resp.History = s.health.Health()
	}
	if s.live != nil {
		resp.LiveExchanges = s.live.Live()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start binds the listen address and serves in the background. It returns
// once the socket is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    status,
		},
	})
}
