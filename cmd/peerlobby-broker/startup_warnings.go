package main

import (
	"log/slog"

	"github.com/arcadelab/peerlobby/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: PEERLOBBY_ALLOWED_ORIGINS contains '*' (allows any browser origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: PEERLOBBY_ALLOWED_ORIGINS is empty while --mode=prod (any browser origin may connect)",
			"warning_code", "allowed_origins_empty_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxConnsPerAddr <= 0 {
		logger.Warn("startup security warning: PEERLOBBY_MAX_CONNS_PER_ADDR is 0 (unlimited) while --mode=prod",
			"warning_code", "conn_limit_unlimited_in_prod",
			"max_conns_per_addr", cfg.MaxConnsPerAddr,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.RateLimitMaxMessages <= 0 {
		logger.Warn("startup security warning: PEERLOBBY_RATE_LIMIT_MAX_MESSAGES is 0 (unlimited) while --mode=prod",
			"warning_code", "rate_limit_unlimited_in_prod",
			"rate_limit_max_messages", cfg.RateLimitMaxMessages,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("startup warning: memory store while --mode=prod (sessions do not survive restarts; single instance only)",
			"warning_code", "memory_store_in_prod",
			"store_backend", cfg.StoreBackend,
			"mode", cfg.Mode,
		)
	}

	// Covers bad ICE JSON and TURN REST enabled without TURN URLs. The broker
	// still brokers; clients just cannot fetch ICE servers until it is fixed.
	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid (GET /webrtc/ice will fail)",
			"warning_code", "ice_config_invalid",
			"err", err.Error(),
			"mode", cfg.Mode,
		)
	}

	// Warn if the frame cap is unusually large, since it weakens oversized
	// message DoS hardening on the WebSocket.
	if cfg.MaxMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: PEERLOBBY_MAX_MESSAGE_BYTES is very large (increases per-frame allocation risk)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
