package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/better-wallet/delegate-recovery/internal/api"
	"github.com/better-wallet/delegate-recovery/internal/app"
	"github.com/better-wallet/delegate-recovery/internal/config"
	"github.com/better-wallet/delegate-recovery/internal/logger"
	"github.com/better-wallet/delegate-recovery/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	appAuth := middleware.NewAppAuth(cfg.AppSecretHash)
	if !appAuth.Enabled() {
		slog.Warn("APP_SECRET_HASH is not set; the operator API is unauthenticated")
	}
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitRPS > 0)
	go rateLimiter.Run(ctx)

	server := api.NewServer(cfg, rt.Service, rt.Store, rt.Metrics.Handler(), appAuth, rateLimiter)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start(ctx)
	}()

	// Wait for either server error or shutdown signal
	select {
	case err := <-serverErrors:
		if err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}

	case <-ctx.Done():
		slog.Info("received shutdown signal")

		// In-flight recoveries run detached from their requests. The chain and
		// database clients stay open until they reach verification.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), api.RecoverTimeout+15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
		if err := rt.Service.Wait(shutdownCtx); err != nil {
			slog.Error("recoveries still running at exit", "error", err)
		}

		slog.Info("server stopped")
	}
}
