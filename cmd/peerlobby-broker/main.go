package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/arcadelab/peerlobby/internal/broker"
	"github.com/arcadelab/peerlobby/internal/config"
	"github.com/arcadelab/peerlobby/internal/httpserver"
	"github.com/arcadelab/peerlobby/internal/metrics"
	"github.com/arcadelab/peerlobby/internal/registry"
	"github.com/arcadelab/peerlobby/internal/signaling"
	"github.com/arcadelab/peerlobby/internal/state"
	"github.com/arcadelab/peerlobby/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting peerlobby-broker",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"store_backend", cfg.StoreBackend,
		"session_ttl", cfg.SessionTTL,
		"host_grace_period", cfg.HostGracePeriod,
		"max_conns_per_addr", cfg.MaxConnsPerAddr,
		"rate_limit_max_messages", cfg.RateLimitMaxMessages,
		"allowed_origins", len(cfg.AllowedOrigins),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)

	logStartupSecurityWarnings(logger, cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	b := broker.New(broker.Config{
		SessionTTL:  cfg.SessionTTL,
		GracePeriod: cfg.HostGracePeriod,
	}, store, registry.New(), m, logger, nil)
	defer b.Close()

	// The redis backend expires sessions natively and sweeps as a no-op.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go b.RunSessionSweeper(sweepCtx, cfg.SessionSweepInterval)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	srv.SetReadyCheck(store.Ping)

	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.New(turnrest.Config{
			SharedSecret: cfg.TURNREST.SharedSecret,
			TTL:          cfg.TURNREST.TTL,
			Realm:        cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error("failed to configure turn rest credentials", "err", err)
			os.Exit(2)
		}
		srv.SetTURNCredentials(gen)
	}

	sig := signaling.NewServer(signaling.Config{
		AllowedOrigins:       cfg.AllowedOrigins,
		HelloTimeout:         cfg.HelloTimeout,
		PingInterval:         cfg.PingInterval,
		PongTimeout:          cfg.PongTimeout,
		WriteTimeout:         cfg.WriteTimeout,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxConnsPerAddr:      cfg.MaxConnsPerAddr,
		RateLimitWindow:      cfg.RateLimitWindow,
		RateLimitMaxMessages: cfg.RateLimitMaxMessages,
	}, b, m, logger)
	srv.Mux().Handle("GET /ws", sig)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", m.Handler())

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

// openStore builds the configured session/room backend. The redis backend is
// pinged once so a bad address fails startup rather than the first hello.
func openStore(cfg config.Config, logger *slog.Logger) (state.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     10,
			MinIdleConns: 2,
		})
		store := state.NewRedis(client, cfg.Redis.KeyPrefix, cfg.SessionTTL)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("redis store connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return store, nil
	default:
		return state.NewMemory(), nil
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
