// Package api serves the operator HTTP API: account status, recovery
// triggers and the attempt audit trail.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/middleware"
)

// RecoverTimeout bounds one recovery request. Recoveries wait for receipts,
// so the write timeout of the server is raised to match.
const RecoverTimeout = 5 * time.Minute

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	service     RecoveryService
	db          HealthChecker
	metrics     http.Handler
	appAuth     *middleware.AppAuth
	rateLimiter *middleware.RateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(
	cfg *config.Config,
	service RecoveryService,
	db HealthChecker,
	metrics http.Handler,
	appAuth *middleware.AppAuth,
	rateLimiter *middleware.RateLimiter,
) *Server {
	return &Server{
		config:      cfg,
		service:     service,
		db:          db,
		metrics:     metrics,
		appAuth:     appAuth,
		rateLimiter: rateLimiter,
	}
}

// Handler builds the routed handler with its middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Operator API: App Auth -> Rate Limit -> Handler
	guard := func(h http.HandlerFunc) http.Handler {
		return s.appAuth.Authenticate(s.rateLimiter.Limit(h))
	}
	mux.Handle("GET /v1/accounts", guard(s.handleListAccounts))
	mux.Handle("GET /v1/accounts/{address}/status", guard(s.handleStatus))
	mux.Handle("POST /v1/accounts/{address}/recover", guard(s.handleRecover))
	mux.Handle("GET /v1/accounts/{address}/attempts", guard(s.handleListAttempts))

	// RequestID -> Logging -> LimitBody -> Routes
	return middleware.RequestID(middleware.Logging(middleware.LimitBody(mux)))
}

// Start serves until the listener fails or the server is shut down
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: RecoverTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "starting server", "port", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports ok when the database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logger.Warn(r.Context(), "health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
