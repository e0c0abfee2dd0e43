package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcalzada-xor/trapwire/internal/app"
	"github.com/lcalzada-xor/trapwire/internal/config"
)

func main() {
	// Structured logging to stdout; the journal picks it up under systemd.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("Trapwire starting...")
	cfg := config.Load()
	if cfg.Debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("Bootstrap failed", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
