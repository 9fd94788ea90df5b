package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arcadelab/peerlobby/internal/broker"
	"github.com/arcadelab/peerlobby/internal/config"
	"github.com/arcadelab/peerlobby/internal/httpserver"
	"github.com/arcadelab/peerlobby/internal/metrics"
	"github.com/arcadelab/peerlobby/internal/registry"
	"github.com/arcadelab/peerlobby/internal/signaling"
	"github.com/arcadelab/peerlobby/internal/state"
)

// Standalone broker for E2E runs: memory store, every origin admitted, no
// external STUN so runs stay hermetic. Prints READY <port> once listening.
func main() {
	bindHost := envOrDefault("BIND_HOST", "127.0.0.1")
	port := envIntOrDefault("PORT", 0)

	cfg, err := config.Load([]string{
		"--listen-addr", net.JoinHostPort(bindHost, strconv.Itoa(port)),
		"--mode", "dev",
		"--stun-urls", "",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	store := state.NewMemory()
	defer store.Close()

	m := metrics.New()
	b := broker.New(broker.Config{
		SessionTTL:  cfg.SessionTTL,
		GracePeriod: cfg.HostGracePeriod,
	}, store, registry.New(), m, logger, nil)
	defer b.Close()

	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{})
	srv.SetReadyCheck(store.Ping)

	sig := signaling.NewServer(signaling.Config{
		AllowedOrigins:  cfg.AllowedOrigins,
		HelloTimeout:    cfg.HelloTimeout,
		PingInterval:    cfg.PingInterval,
		PongTimeout:     cfg.PongTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxMessageBytes: cfg.MaxMessageBytes,
		// E2E drivers open many connections from one address; leave the
		// per-address cap off.
		MaxConnsPerAddr:      0,
		RateLimitWindow:      cfg.RateLimitWindow,
		RateLimitMaxMessages: cfg.RateLimitMaxMessages,
	}, b, m, logger)
	srv.Mux().Handle("GET /ws", sig)
	srv.Mux().Handle("GET /metrics", m.Handler())

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", cfg.ListenAddr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	actualPort := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("READY %d\n", actualPort)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
			os.Exit(1)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
