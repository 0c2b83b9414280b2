// Command token-validator periodically sweeps every cached access token and
// validates it against the OAuth provider, evicting tokens the provider no
// longer recognizes. It can run beside the main service or on its own.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-archiver/cache"
	"github.com/onnwee/chat-archiver/config"
	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/token"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Error("failed to close redis", slog.Any("err", err))
		}
	}()

	manager := &token.Manager{
		DB:           database,
		Cache:        kv,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}

	token.StartValidator(ctx, manager, cfg.ValidateInterval)
	slog.Info("token validator started", slog.Duration("interval", cfg.ValidateInterval))

	<-ctx.Done()
	slog.Info("shutting down")
}
