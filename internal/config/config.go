// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage paths, queue wiring, rate limiting,
// and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-coach-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RedisConfig defines the shared key-value store / queue connection.
type RedisConfig struct {
	Addr     string // REDIS_ADDR (host:port)
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// QueueConfig defines the generation job stream wiring.
type QueueConfig struct {
	Stream     string // QUEUE_STREAM
	DeadStream string // QUEUE_DEAD_STREAM
	Group      string // QUEUE_GROUP (dead-letter consumer group)
	Consumer   string // QUEUE_CONSUMER (this instance's consumer name)
}

// TelegramConfig defines the chat transport settings.
type TelegramConfig struct {
	Token   string // TELEGRAM_TOKEN (empty selects the logging transport)
	BotName string // TELEGRAM_BOT_NAME (deep-link target)
}

// GateConfig defines the internal-caller authgate.
type GateConfig struct {
	Key          string   // INTERNAL_AUTH_KEY
	AllowedCIDRs []string // INTERNAL_ALLOWED_CIDRS (CSV)
	DebugBypass  bool     // INTERNAL_AUTH_BYPASS (local dev only)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath string // SQLite path

	Redis RedisConfig
	Queue QueueConfig

	// Pipeline
	DeliveryTTL      time.Duration // retention of delivery-state records
	CacheTTL         time.Duration // retention of entity cache entries
	ProgramCost      int           // credit cost per program job
	SubscriptionCost int           // credit cost per subscription job
	Workers          int           // callback pool size
	WorkerQueueDepth int           // callback pool queue depth

	Telegram TelegramConfig
	Gate     GateConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DBPath: getenv("DB_PATH", "app.db"),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Stream:     getenv("QUEUE_STREAM", "jobs:generation"),
			DeadStream: getenv("QUEUE_DEAD_STREAM", "jobs:generation:dead"),
			Group:      getenv("QUEUE_GROUP", "coach-backend"),
			Consumer:   getenv("QUEUE_CONSUMER", defaultConsumer()),
		},

		// Pipeline
		DeliveryTTL:      getdur("DELIVERY_TTL", 7*24*time.Hour),
		CacheTTL:         getdur("CACHE_TTL", time.Hour),
		ProgramCost:      getint("PROGRAM_COST", 1),
		SubscriptionCost: getint("SUBSCRIPTION_COST", 2),
		Workers:          getint("CALLBACK_WORKERS", 4),
		WorkerQueueDepth: getint("CALLBACK_QUEUE_DEPTH", 64),

		Telegram: TelegramConfig{
			Token:   getenv("TELEGRAM_TOKEN", ""),
			BotName: getenv("TELEGRAM_BOT_NAME", ""),
		},
		Gate: GateConfig{
			Key:          getenv("INTERNAL_AUTH_KEY", ""),
			AllowedCIDRs: splitCSV(getenv("INTERNAL_ALLOWED_CIDRS", "")),
			DebugBypass:  getbool("INTERNAL_AUTH_BYPASS", false),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 25.0),
		RateBurst: getint("RATE_BURST", 50),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-coach-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.Queue.Stream) == "" || strings.TrimSpace(cfg.Queue.DeadStream) == "" {
		return cfg, errors.New("QUEUE_STREAM and QUEUE_DEAD_STREAM must not be empty")
	}
	if cfg.Queue.Stream == cfg.Queue.DeadStream {
		return cfg, errors.New("QUEUE_STREAM and QUEUE_DEAD_STREAM must differ")
	}
	if cfg.DeliveryTTL <= 0 {
		return cfg, errors.New("DELIVERY_TTL must be > 0")
	}
	if cfg.CacheTTL < 0 {
		return cfg, errors.New("CACHE_TTL must be >= 0")
	}
	if cfg.ProgramCost < 0 || cfg.SubscriptionCost < 0 {
		return cfg, errors.New("plan costs must be >= 0")
	}
	if cfg.Workers < 1 {
		return cfg, errors.New("CALLBACK_WORKERS must be >= 1")
	}
	if cfg.WorkerQueueDepth < 1 {
		return cfg, errors.New("CALLBACK_QUEUE_DEPTH must be >= 1")
	}
	if cfg.Gate.Key == "" && !cfg.Gate.DebugBypass {
		return cfg, errors.New("INTERNAL_AUTH_KEY must be set unless INTERNAL_AUTH_BYPASS is enabled")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// defaultConsumer derives a per-instance consumer name so two replicas never
// share one stream consumer.
func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "coach-backend-1"
	}
	return "coach-backend-" + host
}
