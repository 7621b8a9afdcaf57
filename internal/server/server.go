// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is used when New is given an empty address.
	DefaultAddr = "127.0.0.1:9464"

	// ShutdownTimeout bounds the graceful shutdown in Serve.
	ShutdownTimeout = 5 * time.Second
)

// Version is reported by /health.
var Version = "dev"

// StatusFunc returns the tab's current session status.
type StatusFunc func(ctx context.Context) session.Status

// ============================================================================
// SERVER
// ============================================================================

// Server publishes one tab's session status and metrics.
type Server struct {
	addr     string
	router   *http.ServeMux
	status   StatusFunc
	gatherer prometheus.Gatherer
	token    string
	log      zerolog.Logger
	started  time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a Server. A nil gatherer disables /metrics.
func New(addr string, status StatusFunc, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:     addr,
		router:   http.NewServeMux(),
		status:   status,
		gatherer: gatherer,
		log:      log.With().Str("component", "server").Logger(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// WithToken requires "Authorization: Bearer <token>" on every request.
// An empty token leaves the server open.
func (s *Server) WithToken(token string) *Server {
	s.token = token
	return s
}

// Addr returns the listening address once Serve has bound, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /status", s.handleStatus)
	if s.gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	handler := Chain(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.log),
	)(s.router)

	if s.token != "" {
		handler = BearerAuthMiddleware(s.token)(handler)
	}
	return handler
}

// ============================================================================
// HANDLERS
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State            string `json:"state"`
	Authenticated    bool   `json:"authenticated"`
	UserID           string `json:"user_id,omitempty"`
	Email            string `json:"email,omitempty"`
	RememberMe       bool   `json:"remember_me"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	IdleSeconds      int64  `json:"idle_seconds"`
	TimeoutSeconds   int64  `json:"timeout_seconds"`
	TokenExpiry      string `json:"token_expiry,omitempty"`
	LastSignal       string `json:"last_signal,omitempty"`
	Origin           string `json:"origin"`
	Backend          string `json:"backend"`
}

func newStatusResponse(st session.Status) StatusResponse {
	resp := StatusResponse{
		State:            st.State.String(),
		Authenticated:    st.State.IsAuthenticated(),
		UserID:           st.User.ID,
		Email:            st.User.Email,
		RememberMe:       st.RememberMe,
		RemainingSeconds: int64(st.Remaining.Seconds()),
		IdleSeconds:      int64(st.Idle.Seconds()),
		TimeoutSeconds:   int64(st.Threshold.Seconds()),
		LastSignal:       string(st.LastSignal),
		Origin:           st.Origin,
		Backend:          st.Backend,
	}
	if !st.TokenExpiry.IsZero() {
		resp.TokenExpiry = st.TokenExpiry.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "no session attached")
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(s.status(r.Context())))
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Listen binds the configured address. Serve calls it when the caller has
// not, so bind errors can be reported before serving starts.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Serve serves until ctx is done, then shuts down gracefully. It returns nil
// after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	ln := s.listener
	s.mu.Unlock()

	s.log.Info().Str("event", "SERVER_START").Str("addr", ln.Addr().String()).Msg("status server listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a serving Server. It is a no-op before Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.log.Info().Str("event", "SERVER_SHUTDOWN").Msg("status server stopping")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
