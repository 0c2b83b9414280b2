// Command chat-archiver ingests live Twitch chat and persists it to Postgres.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Resolves a bot access token (Redis cache-aside over the OAuth refresh
//     grant) and authenticates the IRC-over-websocket connection.
//   - Joins every active channel and runs the read/dispatch loop alongside
//     the periodic buffer flusher and token validator sweep.
//   - Exposes a minimal HTTP server with /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: the read loop stops, one final
// flush commits whatever is buffered, then the process exits.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-archiver/cache"
	"github.com/onnwee/chat-archiver/config"
	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/ingest"
	"github.com/onnwee/chat-archiver/server"
	"github.com/onnwee/chat-archiver/telemetry"
	"github.com/onnwee/chat-archiver/token"
	"github.com/onnwee/chat-archiver/ws"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateIngestReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.InitTracing("chat-archiver", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

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

	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

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

	bot, err := db.GetBot(ctx, database, cfg.Bot)
	if err != nil {
		slog.Error("failed to load bot", slog.String("bot", cfg.Bot), slog.Any("err", err))
		os.Exit(1)
	}

	tctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	accessToken, err := manager.GetBotToken(tctx, cfg.Bot)
	cancel()
	if err != nil {
		slog.Error("failed to get bot token", slog.Any("err", err))
		os.Exit(1)
	}

	conn, err := ws.Dial(ctx, cfg.WSEndpoint)
	if err != nil {
		slog.Error("failed to connect to chat", slog.Any("err", err))
		os.Exit(1)
	}
	if err := conn.Authenticate(accessToken, bot.Nick); err != nil {
		slog.Error("chat auth failed", slog.Any("err", err))
		os.Exit(1)
	}

	channels, err := db.ActiveChannelNames(ctx, database)
	if err != nil {
		slog.Error("failed to load channels", slog.Any("err", err))
		os.Exit(1)
	}
	if len(channels) == 0 {
		slog.Warn("no active channels configured; nothing will be ingested")
	}
	if err := conn.JoinChannels(channels); err != nil {
		slog.Error("failed to join channels", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("joined channels", slog.Int("count", len(channels)))

	buf := &ingest.Buffer{}
	flusherDone := ingest.StartFlusher(ctx, database, buf, cfg.FlushInterval)
	token.StartValidator(ctx, manager, cfg.ValidateInterval)

	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	pipeline := &ingest.Pipeline{Conn: conn, DB: database, Buffer: buf}
	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("ingest loop exited", slog.Any("err", err))
		stop()
	}

	// Wait for the final flush before exiting.
	<-flusherDone
	slog.Info("shutdown complete")
}

func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}
