package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr     = "PEERLOBBY_LISTEN_ADDR"
	envVarMode           = "PEERLOBBY_MODE"
	envVarLogFormat      = "PEERLOBBY_LOG_FORMAT"
	envVarLogLevel       = "PEERLOBBY_LOG_LEVEL"
	envVarAllowedOrigins = "PEERLOBBY_ALLOWED_ORIGINS"

	// Session and room lifecycle.
	envVarSessionTTL           = "PEERLOBBY_SESSION_TTL"
	envVarSessionSweepInterval = "PEERLOBBY_SESSION_SWEEP_INTERVAL"
	envVarHostGracePeriod      = "PEERLOBBY_HOST_GRACE_PERIOD"

	// Admission control.
	envVarMaxConnsPerAddr      = "PEERLOBBY_MAX_CONNS_PER_ADDR"
	envVarRateLimitWindow      = "PEERLOBBY_RATE_LIMIT_WINDOW"
	envVarRateLimitMaxMessages = "PEERLOBBY_RATE_LIMIT_MAX_MESSAGES"

	// WebSocket transport.
	envVarMaxMessageBytes = "PEERLOBBY_MAX_MESSAGE_BYTES"
	envVarHelloTimeout    = "PEERLOBBY_HELLO_TIMEOUT"
	envVarPingInterval    = "PEERLOBBY_PING_INTERVAL"
	envVarPongTimeout     = "PEERLOBBY_PONG_TIMEOUT"
	envVarWriteTimeout    = "PEERLOBBY_WRITE_TIMEOUT"

	// Session/room store backend.
	envVarStoreBackend   = "PEERLOBBY_STORE_BACKEND"
	envVarRedisAddr      = "PEERLOBBY_REDIS_ADDR"
	envVarRedisPassword  = "PEERLOBBY_REDIS_PASSWORD"
	envVarRedisDB        = "PEERLOBBY_REDIS_DB"
	envVarRedisKeyPrefix = "PEERLOBBY_REDIS_KEY_PREFIX"

	envVarStaticDir = "PEERLOBBY_STATIC_DIR"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSecret         = "PEERLOBBY_TURN_REST_SECRET"
	envVarTURNRESTTTL            = "PEERLOBBY_TURN_REST_TTL"
	envVarTURNRESTUsernamePrefix = "PEERLOBBY_TURN_REST_USERNAME_PREFIX"

	envVarShutdownTimeout = "PEERLOBBY_SHUTDOWN_TIMEOUT"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultMode       Mode = ModeDev

	DefaultSessionTTL           = 5 * time.Minute
	DefaultSessionSweepInterval = time.Minute
	DefaultHostGracePeriod      = 30 * time.Second

	DefaultMaxConnsPerAddr      = 8
	DefaultRateLimitWindow      = 10 * time.Second
	DefaultRateLimitMaxMessages = 100

	DefaultMaxMessageBytes int64 = 64 * 1024
	DefaultHelloTimeout          = 10 * time.Second
	DefaultPingInterval          = 20 * time.Second
	DefaultPongTimeout           = 60 * time.Second
	DefaultWriteTimeout          = 10 * time.Second

	DefaultStoreBackend   = StoreBackendMemory
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix = "peerlobby:"

	DefaultSTUNURLs = "stun:stun.l.google.com:19302"

	DefaultTURNRESTTTL            = 10 * time.Minute
	DefaultTURNRESTUsernamePrefix = "peerlobby"

	DefaultShutdownTimeout = 10 * time.Second
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type TurnRESTConfig struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr     string
	Mode           Mode
	LogFormat      LogFormat
	LogLevel       slog.Level
	AllowedOrigins []string

	// Session and room lifecycle.
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	HostGracePeriod      time.Duration

	// Admission control. MaxConnsPerAddr 0 disables the per-address cap;
	// RateLimitMaxMessages 0 disables the per-identity window.
	MaxConnsPerAddr      int
	RateLimitWindow      time.Duration
	RateLimitMaxMessages int

	// WebSocket transport.
	MaxMessageBytes int64
	HelloTimeout    time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration

	StoreBackend StoreBackend
	Redis        RedisConfig

	// StaticDir serves a demo client when non-empty.
	StaticDir string

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	ShutdownTimeout time.Duration

	iceConfigErr error
}

// ICEConfigError reports a bad ICE server configuration. It is deliberately
// not fatal at startup: the broker still brokers, clients just get an empty
// ICE list, and readiness checks surface the problem.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	logLevelStr := envOrDefault(lookup, envVarLogLevel, "info")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")

	sessionTTL, err := envDurationOrDefault(lookup, envVarSessionTTL, DefaultSessionTTL)
	if err != nil {
		return Config{}, err
	}
	sessionSweepInterval, err := envDurationOrDefault(lookup, envVarSessionSweepInterval, DefaultSessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	hostGracePeriod, err := envDurationOrDefault(lookup, envVarHostGracePeriod, DefaultHostGracePeriod)
	if err != nil {
		return Config{}, err
	}

	maxConnsPerAddr, err := envIntOrDefault(lookup, envVarMaxConnsPerAddr, DefaultMaxConnsPerAddr)
	if err != nil {
		return Config{}, err
	}
	rateLimitWindow, err := envDurationOrDefault(lookup, envVarRateLimitWindow, DefaultRateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	rateLimitMaxMessages, err := envIntOrDefault(lookup, envVarRateLimitMaxMessages, DefaultRateLimitMaxMessages)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}
	helloTimeout, err := envDurationOrDefault(lookup, envVarHelloTimeout, DefaultHelloTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarPingInterval, DefaultPingInterval)
	if err != nil {
		return Config{}, err
	}
	pongTimeout, err := envDurationOrDefault(lookup, envVarPongTimeout, DefaultPongTimeout)
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := envDurationOrDefault(lookup, envVarWriteTimeout, DefaultWriteTimeout)
	if err != nil {
		return Config{}, err
	}

	storeBackendStr := envOrDefault(lookup, envVarStoreBackend, string(DefaultStoreBackend))
	redisAddr := envOrDefault(lookup, envVarRedisAddr, DefaultRedisAddr)
	redisPassword := envOrDefault(lookup, envVarRedisPassword, "")
	redisDB, err := envIntOrDefault(lookup, envVarRedisDB, 0)
	if err != nil {
		return Config{}, err
	}
	redisKeyPrefix := envOrDefault(lookup, envVarRedisKeyPrefix, DefaultRedisKeyPrefix)

	staticDir := envOrDefault(lookup, envVarStaticDir, "")

	iceServersJSON := envOrDefault(lookup, envVarICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envVarSTUNURLs, DefaultSTUNURLs)
	turnURLs := envOrDefault(lookup, envVarTURNURLs, "")
	turnUsername := envOrDefault(lookup, envVarTURNUsername, "")
	turnCredential := envOrDefault(lookup, envVarTURNCredential, "")

	turnRESTSecret := envOrDefault(lookup, envVarTURNRESTSecret, "")
	turnRESTTTL, err := envDurationOrDefault(lookup, envVarTURNRESTTTL, DefaultTURNRESTTTL)
	if err != nil {
		return Config{}, err
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("peerlobby-broker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod (env "+envVarMode+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json (env "+envVarLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error (env "+envVarLogLevel+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins; empty allows all (env "+envVarAllowedOrigins+")")

	fs.DurationVar(&sessionTTL, "session-ttl", sessionTTL, "Session staleness TTL; a token idle this long mints a fresh identity (env "+envVarSessionTTL+")")
	fs.DurationVar(&sessionSweepInterval, "session-sweep-interval", sessionSweepInterval, "How often the memory store sweeps stale sessions (env "+envVarSessionSweepInterval+")")
	fs.DurationVar(&hostGracePeriod, "host-grace-period", hostGracePeriod, "How long a hostless room waits for a claim or host return before closing (env "+envVarHostGracePeriod+")")

	fs.IntVar(&maxConnsPerAddr, "max-conns-per-addr", maxConnsPerAddr, "Max concurrent WebSocket connections per remote address, 0 = unlimited (env "+envVarMaxConnsPerAddr+")")
	fs.DurationVar(&rateLimitWindow, "rate-limit-window", rateLimitWindow, "Fixed window for per-identity message rate limiting (env "+envVarRateLimitWindow+")")
	fs.IntVar(&rateLimitMaxMessages, "rate-limit-max-messages", rateLimitMaxMessages, "Max messages per identity per window, 0 = unlimited (env "+envVarRateLimitMaxMessages+")")

	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.DurationVar(&helloTimeout, "hello-timeout", helloTimeout, "How long a connection may stay unidentified before being closed (env "+envVarHelloTimeout+")")
	fs.DurationVar(&pingInterval, "ping-interval", pingInterval, "WebSocket ping interval, must be < -pong-timeout (env "+envVarPingInterval+")")
	fs.DurationVar(&pongTimeout, "pong-timeout", pongTimeout, "Close connections that miss pongs for this long (env "+envVarPongTimeout+")")
	fs.DurationVar(&writeTimeout, "write-timeout", writeTimeout, "WebSocket write deadline (env "+envVarWriteTimeout+")")

	fs.StringVar(&storeBackendStr, "store-backend", storeBackendStr, "Session/room store: memory or redis (env "+envVarStoreBackend+")")
	fs.StringVar(&redisAddr, "redis-addr", redisAddr, "Redis address (env "+envVarRedisAddr+")")
	fs.StringVar(&redisPassword, "redis-password", redisPassword, "Redis password (env "+envVarRedisPassword+")")
	fs.IntVar(&redisDB, "redis-db", redisDB, "Redis database number (env "+envVarRedisDB+")")
	fs.StringVar(&redisKeyPrefix, "redis-key-prefix", redisKeyPrefix, "Prefix for all redis keys (env "+envVarRedisKeyPrefix+")")

	fs.StringVar(&staticDir, "static-dir", staticDir, "Directory of static files to serve at /, empty disables (env "+envVarStaticDir+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envVarICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envVarSTUNURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envVarTURNURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "Static TURN username (env "+envVarTURNUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "Static TURN credential (env "+envVarTURNCredential+")")
	fs.StringVar(&turnRESTSecret, "turn-rest-secret", turnRESTSecret, "TURN REST shared secret, empty disables ephemeral credentials (env "+envVarTURNRESTSecret+")")
	fs.DurationVar(&turnRESTTTL, "turn-rest-ttl", turnRESTTTL, "TURN REST credential lifetime (env "+envVarTURNRESTTTL+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix (env "+envVarTURNRESTUsernamePrefix+")")

	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	storeBackend, err := parseStoreBackend(storeBackendStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if sessionTTL <= 0 {
		return Config{}, fmt.Errorf("%s/--session-ttl must be > 0", envVarSessionTTL)
	}
	if sessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--session-sweep-interval must be > 0", envVarSessionSweepInterval)
	}
	if hostGracePeriod <= 0 {
		return Config{}, fmt.Errorf("%s/--host-grace-period must be > 0", envVarHostGracePeriod)
	}
	if maxConnsPerAddr < 0 {
		return Config{}, fmt.Errorf("%s/--max-conns-per-addr must be >= 0", envVarMaxConnsPerAddr)
	}
	if rateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("%s/--rate-limit-window must be > 0", envVarRateLimitWindow)
	}
	if rateLimitMaxMessages < 0 {
		return Config{}, fmt.Errorf("%s/--rate-limit-max-messages must be >= 0", envVarRateLimitMaxMessages)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if helloTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--hello-timeout must be > 0", envVarHelloTimeout)
	}
	if pingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ping-interval must be > 0", envVarPingInterval)
	}
	if pongTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--pong-timeout must be > 0", envVarPongTimeout)
	}
	if pingInterval >= pongTimeout {
		return Config{}, fmt.Errorf("%s/--ping-interval must be < %s/--pong-timeout", envVarPingInterval, envVarPongTimeout)
	}
	if writeTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--write-timeout must be > 0", envVarWriteTimeout)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if storeBackend == StoreBackendRedis && strings.TrimSpace(redisAddr) == "" {
		return Config{}, fmt.Errorf("%s must be set when %s=%s", envVarRedisAddr, envVarStoreBackend, StoreBackendRedis)
	}
	if strings.TrimSpace(turnRESTSecret) != "" {
		if turnRESTTTL <= 0 {
			return Config{}, fmt.Errorf("%s/--turn-rest-ttl must be > 0 when %s is set", envVarTURNRESTTTL, envVarTURNRESTSecret)
		}
		if strings.TrimSpace(turnRESTUsernamePrefix) == "" {
			return Config{}, fmt.Errorf("%s must be non-empty when %s is set", envVarTURNRESTUsernamePrefix, envVarTURNRESTSecret)
		}
		if strings.Contains(turnRESTUsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s must not contain ':'", envVarTURNRESTUsernamePrefix)
		}
	}

	allowedOrigins := parseAllowedOrigins(allowedOriginsStr)

	cfg := Config{
		ListenAddr:     listenAddr,
		Mode:           mode,
		LogFormat:      logFormat,
		LogLevel:       level,
		AllowedOrigins: allowedOrigins,

		SessionTTL:           sessionTTL,
		SessionSweepInterval: sessionSweepInterval,
		HostGracePeriod:      hostGracePeriod,

		MaxConnsPerAddr:      maxConnsPerAddr,
		RateLimitWindow:      rateLimitWindow,
		RateLimitMaxMessages: rateLimitMaxMessages,

		MaxMessageBytes: maxMessageBytes,
		HelloTimeout:    helloTimeout,
		PingInterval:    pingInterval,
		PongTimeout:     pongTimeout,
		WriteTimeout:    writeTimeout,

		StoreBackend: storeBackend,
		Redis: RedisConfig{
			Addr:      redisAddr,
			Password:  redisPassword,
			DB:        redisDB,
			KeyPrefix: redisKeyPrefix,
		},

		StaticDir: staticDir,

		TURNREST: TurnRESTConfig{
			SharedSecret:   turnRESTSecret,
			TTL:            turnRESTTTL,
			UsernamePrefix: turnRESTUsernamePrefix,
		},

		ShutdownTimeout: shutdownTimeout,
	}

	iceServers, err := parseICEServersFromValues(
		iceServersJSON,
		stunURLs,
		turnURLs,
		turnUsername,
		turnCredential,
		cfg.TURNREST.Enabled(),
	)
	switch {
	case err != nil:
		cfg.iceConfigErr = err
	case cfg.TURNREST.Enabled() && !iceServersHaveTURNURL(iceServers):
		cfg.iceConfigErr = fmt.Errorf("%s is set but no TURN URLs are configured", envVarTURNRESTSecret)
		cfg.ICEServers = iceServers
	default:
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseStoreBackend(raw string) (StoreBackend, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StoreBackendMemory):
		return StoreBackendMemory, nil
	case string(StoreBackendRedis):
		return StoreBackendRedis, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s or %s)", envVarStoreBackend, raw, StoreBackendMemory, StoreBackendRedis)
	}
}

// parseAllowedOrigins splits the comma-separated origin allowlist. Entries are
// matched against the Origin header case-insensitively; an empty list allows
// every origin.
func parseAllowedOrigins(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, strings.ToLower(entry))
	}
	return out
}
