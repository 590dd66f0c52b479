// Package server wires the HTTP surface of Gatehouse: health probes, the
// session endpoints, and the guarded management API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hiredeck/gatehouse/internal/handler"
	"github.com/hiredeck/gatehouse/internal/openapi"
	"github.com/hiredeck/gatehouse/internal/server/middleware"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	SessionTTL         time.Duration
	LoginRatePerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8090,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		SessionTTL:         24 * time.Hour,
		LoginRatePerMinute: 10,
	}
}

// Server is the top-level HTTP server. It owns the chi router, the store,
// and the auth service.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired. Call
// ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, authSvc *service.AuthService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		authSvc: authSvc,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

// selfService allows any authenticated identity: key lifecycle endpoints
// are scoped to the owner by the handlers, so no catalog permission is
// required to manage one's own credentials.
func selfService(id *service.Identity) bool {
	return id != nil && id.Principal != nil
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec for the management API (no auth required) ---
	r.Get("/openapi.json", openapi.Handler())

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		sessionHandler := handler.NewSessionHandler(s.authSvc, s.cfg.SessionTTL)
		keysHandler := handler.NewKeysHandler(s.authSvc)
		rolesHandler := handler.NewRolesHandler(s.authSvc)

		// Login is unauthenticated and IP rate-limited against credential
		// stuffing; logout is a client-side no-op.
		r.With(middleware.LoginRateLimit(s.cfg.LoginRatePerMinute)).
			Post("/session", sessionHandler.Login)
		r.Delete("/session", sessionHandler.Logout)

		// Self-service endpoints: any authenticated identity, owner-scoped
		// by the handlers.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.authSvc, "api_keys", "manage", &middleware.GuardOptions{
				Predicate: selfService,
			}))

			r.Get("/me", sessionHandler.Me)

			r.Get("/keys", keysHandler.List)
			r.Post("/keys", keysHandler.Create)
			r.Post("/keys/{keyId}/revoke", keysHandler.Revoke)
			r.Delete("/keys/{keyId}", keysHandler.Delete)
			r.Get("/keys/{keyId}/usage", keysHandler.Usage)
		})

		// Role catalog: requires roles:read (or a wildcard / super tier).
		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.authSvc, "roles", "read", nil))

			r.Get("/roles", rolesHandler.List)
			r.Get("/roles/{roleId}", rolesHandler.Get)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"store":  s.store.Driver(),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or
// SIGTERM is received, then drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
