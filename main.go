// Command confbot is the conference operations bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to the database (Postgres or SQLite) and applies migrations.
//   - Ensures a room exists for every seed and admin channel.
//   - Starts the bot engine: command handling, the outbound broadcaster, occupancy sampling,
//     the under-occupancy audit, the metrics snapshot, the channel limit guard and sample retention.
//   - Keeps the IRC connection alive and exposes /healthz, /readyz, /status, /occupancy and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/confbot/bot"
	"github.com/onnwee/confbot/chat"
	"github.com/onnwee/confbot/config"
	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/server"
	"github.com/onnwee/confbot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
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
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("confbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	store := db.NewStore(database, cfg.DBDriver)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"), slog.String("driver", cfg.DBDriver))
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	err = db.Setup(migrateCtx, database, cfg.DBDriver)
	cancelMigrate()
	if err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transcript, err := chat.NewTranscript(cfg.TranscriptDir)
	if err != nil {
		slog.Error("transcript setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	b := bot.New(cfg, store, transcript)
	if err := b.EnsureSeedRooms(ctx); err != nil {
		slog.Error("seed rooms failed", slog.Any("err", err))
		os.Exit(1)
	}
	client := chat.NewClient(chat.Config{
		Server:   cfg.IRCServer,
		TLS:      cfg.IRCTLS,
		Nick:     cfg.IRCNick,
		Password: cfg.IRCPassword,
	}, b.Handlers())
	b.Attach(client)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("starting confbot",
		slog.String("nick", cfg.IRCNick),
		slog.String("server", cfg.IRCServer),
		slog.Any("seed_channels", cfg.SeedChannels),
		slog.Any("admin_channels", cfg.AdminChannels))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := b.Run(ctx); err != nil {
			slog.Error("bot engine exited with error", slog.Any("err", err))
		}
	}()
	go func() {
		defer wg.Done()
		chat.Supervise(ctx, client, 30*time.Second)
	}()
	go func() {
		defer wg.Done()
		mux := server.NewMux(ctx, store, server.Options{
			Connected:         client.Connected,
			AdminChannels:     cfg.AdminChannels,
			Do:                b.Engine().Do,
			AdminToken:        cfg.AdminToken,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		})
		if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
}
