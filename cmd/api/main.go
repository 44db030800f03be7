// Package main is the entry point for the storefront API server.
//
// It loads configuration, connects the Postgres pool, applies embedded
// migrations, wires the domain services (catalog, checkout, auth, webhook
// settlement), and starts the HTTP server.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/api/handlers"
	"storefront/internal/auth"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/core"
	"storefront/internal/db"
	"storefront/internal/external"
	"storefront/internal/migrations/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("storefront API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	if err := postgres.Apply(ctx, pool); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Repositories and domain services.
	validator := core.NewValidator(logger)
	productRepo := db.NewProductRepo(pool, logger)
	userRepo := db.NewUserRepo(pool)

	authSvc := auth.NewService(auth.ServiceConfig{
		UserRepo:   userRepo,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
	})

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 10 * time.Second},
		external.StripeClientConfig{
			SecretKey:  cfg.Checkout.StripeSecretKey.Unmask(),
			SuccessURL: cfg.Checkout.SuccessURL,
			CancelURL:  cfg.Checkout.CancelURL,
			Logger:     logger,
		},
	)

	settler := checkout.NewSettler(productRepo, logger)
	dispatcher := checkout.NewDispatcher(settler, logger)

	// Server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authSvc
	srv.HealthProbes = []core.HealthProbe{db.NewProbe(pool)}

	// Handlers. The webhook and login routes are public; catalog and
	// checkout-session routes sit behind the auth middleware.
	webhookHandler := handlers.NewCheckoutWebhookHandler(
		&external.StripeVerifier{},
		dispatcher,
		cfg.Checkout.StripeWebhookSecret.Unmask(),
		logger,
	)
	authHandler := handlers.NewAuthHandler(authSvc, validator, logger)
	productHandler := handlers.NewProductHandler(productRepo, validator, logger)
	checkoutHandler := handlers.NewCheckoutHandler(productRepo, stripeClient, validator, logger)

	srv.RouteRegistrars = []core.RouteRegistrar{
		webhookHandler.RegisterRoutes,
		authHandler.RegisterRoutes,
		func(r chi.Router) { productHandler.RegisterRoutes(r, srv.RequireAuth) },
		func(r chi.Router) { checkoutHandler.RegisterRoutes(r, srv.RequireAuth) },
	}
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// newPool builds the pgx connection pool with the configured tuning knobs.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// newLogger creates a JSON slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
