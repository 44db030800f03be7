// Package core provides the API chassis for the storefront service. It creates
// the chi router and enforces cross-cutting concerns -- panic recovery, request
// timeouts, request IDs, structured logging, and error rendering -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/config"
	"storefront/internal/types"
)

// Authenticator resolves a bearer token to an Actor. It is implemented by the
// auth service and injected for testability.
type Authenticator interface {
	// ResolveToken returns the Actor for a valid session token.
	// Returns an AppError with an auth_* code on failure.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RouteRegistrar mounts a group of domain routes on the router. Handler
// packages provide these so that main can wire routes without core importing
// the handler packages (avoids import cycles).
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the storefront API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// RouteRegistrars are mounted by MountRoutes, in order. Registrars are
	// responsible for wrapping themselves in AuthMiddleware where needed;
	// the webhook route must NOT be wrapped (it is signature-authenticated).
	RouteRegistrars []RouteRegistrar

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if cfg.Checkout.StripeWebhookSecret.Unmask() == "" {
		return nil, fmt.Errorf("webhook signing secret must not be empty")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	s.Logger.Info("server shutdown complete")
	return nil
}
