// Command subtrack runs the subscription tracker API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bissquit/subtrack/internal/app"
	"github.com/bissquit/subtrack/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		code = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		return 1
	}

	slog.Info("stopped")
	return code
}
