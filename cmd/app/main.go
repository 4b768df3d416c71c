package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"token_sniper/internal/app"
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to the YAML config file")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		if bootstrap.Storage != nil {
			bootstrap.Storage.Close()
		}
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "✨ Token Sniper fully operational. Press Ctrl+C to exit.")

	// 3. Run discovery and tracking until a signal arrives
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Pipeline stopped with error", slog.Any("error", err))
	}

	slog.Info("👋 Shutting down gracefully...")
	if err := bootstrap.Shutdown(); err != nil {
		slog.Error("Shutdown incomplete", slog.Any("error", err))
		os.Exit(1)
	}
}
