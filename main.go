// Command swarmbridge mirrors channel messages between a ClawSwarm server and
// a second chat platform (Discord by default, Twitch chat optionally). It:
//   - Loads configuration and initializes structured logging.
//   - Connects the swarm protocol client and the platform session.
//   - Joins every mapped swarm channel and relays in both directions with
//     origin tagging and loop prevention.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and
//     /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: either side failing, or a signal,
// tears down both connections before exit.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onlyflies/swarmbridge/bridge"
	"github.com/onlyflies/swarmbridge/config"
	"github.com/onlyflies/swarmbridge/platform"
	"github.com/onlyflies/swarmbridge/platform/discord"
	"github.com/onlyflies/swarmbridge/platform/twitch"
	"github.com/onlyflies/swarmbridge/server"
	"github.com/onlyflies/swarmbridge/swarm"
	"github.com/onlyflies/swarmbridge/telemetry"
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

	// Config; missing credentials or an empty channel table abort before any
	// connection is attempted.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("swarmbridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	mapping, err := bridge.NewMapping(cfg.ChannelMappings)
	if err != nil {
		slog.Error("channel mapping invalid", slog.Any("err", err))
		os.Exit(1)
	}

	var chat platform.Platform
	switch cfg.Platform {
	case config.PlatformDiscord:
		chat, err = discord.New(cfg.DiscordToken)
		if err != nil {
			slog.Error("discord client init failed", slog.Any("err", err))
			os.Exit(1)
		}
	case config.PlatformTwitch:
		chat = twitch.New(cfg.TwitchUsername, cfg.TwitchOAuthToken, cfg.PlatformChannelIDs())
	}

	swarmClient := swarm.NewClient(cfg.SwarmURL, cfg.SwarmAPIKey)
	b, err := bridge.New(swarmClient, chat, mapping)
	if err != nil {
		slog.Error("bridge init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// HTTP server (health/readiness/status/metrics)
	go func() {
		if err := server.Start(ctx, b, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("starting bridge",
		slog.String("swarm_url", cfg.SwarmURL),
		slog.String("platform", cfg.Platform),
		slog.Int("channels", mapping.Len()))

	if err := b.Run(ctx); err != nil {
		slog.Error("bridge exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
