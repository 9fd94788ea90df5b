package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/arcadelab/peerlobby/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return stringsJoin(h.groups, ".") + "." + k
}

func stringsJoin(parts []string, sep string) string {
	// Small local helper to avoid pulling in strings for tests that don't need it.
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}

func warningCodes(records []recordedLog) map[string]bool {
	codes := map[string]bool{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			codes[code] = true
		}
	}
	return codes
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:           config.ModeDev,
		AllowedOrigins: []string{"*"},
		StoreBackend:   config.StoreBackendMemory,
	}

	logStartupSecurityWarnings(logger, cfg)

	if !warningCodes(records())["allowed_origins_wildcard"] {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_ProdPostureChecks(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:         config.ModeProd,
		StoreBackend: config.StoreBackendMemory,
		// Zero admission limits mean unlimited.
	}

	logStartupSecurityWarnings(logger, cfg)

	codes := warningCodes(records())
	for _, want := range []string{
		"allowed_origins_empty_in_prod",
		"conn_limit_unlimited_in_prod",
		"rate_limit_unlimited_in_prod",
		"memory_store_in_prod",
	} {
		if !codes[want] {
			t.Fatalf("expected warning_code=%s, got %#v", want, records())
		}
	}
}

func TestStartupSecurityWarnings_QuietInDev(t *testing.T) {
	logger, records := newRecordingLogger()

	// The dev defaults: no origin allowlist, memory store, modest limits.
	cfg := config.Config{
		Mode:                 config.ModeDev,
		StoreBackend:         config.StoreBackendMemory,
		MaxConnsPerAddr:      config.DefaultMaxConnsPerAddr,
		RateLimitMaxMessages: config.DefaultRateLimitMaxMessages,
		MaxMessageBytes:      config.DefaultMaxMessageBytes,
	}

	logStartupSecurityWarnings(logger, cfg)

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("expected no warnings for dev defaults, got %#v", codes)
	}
}

func TestStartupSecurityWarnings_LargeMessageCap(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:            config.ModeDev,
		StoreBackend:    config.StoreBackendMemory,
		MaxMessageBytes: 8 << 20,
	}

	logStartupSecurityWarnings(logger, cfg)

	if !warningCodes(records())["max_message_bytes_large"] {
		t.Fatalf("expected warning_code=max_message_bytes_large, got %#v", records())
	}
}
