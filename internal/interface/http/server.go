// Package http implements the REST surface the dashboard UI consumes:
// leaderboard aggregation, session state, and operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/application/auth"
	"github.com/cohort-hub/student-dashboard/internal/application/query"
	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
	"github.com/cohort-hub/student-dashboard/pkg/logger"
	"github.com/cohort-hub/student-dashboard/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host is the address to bind (default: "0.0.0.0").
	Host string

	// Port is the port to listen on (default: 8080).
	Port int

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration for idle connections.
	IdleTimeout time.Duration

	// EnableCORS enables permissive CORS headers for the hosted UI.
	EnableCORS bool

	// EnableMetrics exposes the Prometheus scrape endpoint.
	EnableMetrics bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableCORS:    true,
		EnableMetrics: true,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the handlers need, injected by the
// composition root.
type Dependencies struct {
	// GetLeaderboardHandler serves the aggregation query.
	GetLeaderboardHandler *query.GetLeaderboardHandler

	// Gate exposes the validated session state.
	Gate *auth.Gate

	// DefaultBatches are aggregated when a request names none.
	DefaultBatches []leaderboard.BatchKey

	// Logger for request logging.
	Logger *logger.Logger

	// Metrics records request counters; nil disables recording.
	Metrics *metrics.Manager

	// HealthCheck reports dependency health; nil means "always healthy".
	HealthCheck func(ctx context.Context) map[string]bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the dashboard's HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	log    *logger.Logger
	srv    *http.Server
}

// NewServer creates a server with its routes registered.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    deps.Logger.With(logger.Component("http_server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/v1/session", s.handleSession)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefreshAuth)
	mux.HandleFunc("POST /api/v1/auth/signout", s.handleSignOut)

	if config.EnableMetrics && deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	handler := s.withRecovery(s.withRequestID(s.withLogging(s.withMetrics(mux))))
	if config.EnableCORS {
		handler = s.withCORS(handler)
	}

	s.srv = &http.Server{
		Addr:         config.Address(),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the composed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("address", s.config.Address()))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// errorResponse is the single error shape the UI renders inline.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response failed", logger.Err(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
