// Package config reads the process configuration from the environment.
//
// Every key has a default, so an empty environment yields a runnable local
// setup: simulated gateway, SQLite file in the working directory, 100 starting
// credits and a notification every 30 seconds. Unparsable values fall back to
// the default; values that parse but make no sense are reported by Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Gateway modes.
const (
	GatewaySimulated = "simulated"
	GatewayHTTP      = "http"
)

// CORSConfig lists the browser origins allowed to call the API. Empty means
// any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// ChatConfig holds the credit and notification feed settings.
type ChatConfig struct {
	InitialCredits int           // INITIAL_CREDITS
	MessageCost    int           // MESSAGE_COST
	NotifyInterval time.Duration // NOTIFY_INTERVAL
	NotifyCatalog  string        // NOTIFY_CATALOG (optional YAML file)
	NotifySeed     uint64        // NOTIFY_SEED (0 = time based)
}

// GatewayConfig selects and tunes the chat gateway.
type GatewayConfig struct {
	Mode            string        // GATEWAY_MODE: simulated|http
	BaseURL         string        // GATEWAY_BASE_URL (http mode)
	Timeout         time.Duration // GATEWAY_TIMEOUT
	LatencyScale    float64       // GATEWAY_LATENCY_SCALE (simulated mode)
	SendFailureRate float64       // GATEWAY_SEND_FAILURE_RATE (simulated mode)
	JWTSecret       string        // JWT_SECRET (simulated mode)
	TokenTTL        time.Duration // TOKEN_TTL
}

// OTELConfig holds the tracing exporter settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config is the full process configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // "/api/v1", or "/" for no prefix

	DBPath string

	Chat    ChatConfig
	Gateway GatewayConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + strings.TrimPrefix(c.Port, ":") }

// MustLoad is Load for callers that cannot continue without a configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration from the process environment.
func Load() (Config, error) { return LoadFrom(os.LookupEnv) }

// LoadFrom reads the configuration through lookup, which has the signature of
// os.LookupEnv. Every invalid setting is reported in the returned error.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	e := env(lookup)
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.num("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DBPath: e.str("DB_PATH", "chatverse.db"),

		Chat: ChatConfig{
			InitialCredits: e.num("INITIAL_CREDITS", 100),
			MessageCost:    e.num("MESSAGE_COST", 1),
			NotifyInterval: e.dur("NOTIFY_INTERVAL", 30*time.Second),
			NotifyCatalog:  e.str("NOTIFY_CATALOG", ""),
			NotifySeed:     e.u64("NOTIFY_SEED", 0),
		},
		Gateway: GatewayConfig{
			Mode:            strings.ToLower(e.str("GATEWAY_MODE", GatewaySimulated)),
			BaseURL:         e.str("GATEWAY_BASE_URL", ""),
			Timeout:         e.dur("GATEWAY_TIMEOUT", 10*time.Second),
			LatencyScale:    e.float("GATEWAY_LATENCY_SCALE", 1.0),
			SendFailureRate: e.float("GATEWAY_SEND_FAILURE_RATE", 0),
			JWTSecret:       e.str("JWT_SECRET", "chatverse-dev-secret"),
			TokenTTL:        e.dur("TOKEN_TTL", 24*time.Hour),
		},

		RateRPS:   e.float("RATE_RPS", 20),
		RateBurst: e.num("RATE_BURST", 40),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "chatverse"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.Validate()
}

// Validate reports every setting that is out of range, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) == "", "PORT must not be empty")
	check(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty")

	check(c.Chat.InitialCredits < 0, "INITIAL_CREDITS must be >= 0")
	check(c.Chat.MessageCost < 1, "MESSAGE_COST must be >= 1")
	check(c.Chat.NotifyInterval <= 0, "NOTIFY_INTERVAL must be > 0")

	switch c.Gateway.Mode {
	case GatewaySimulated:
	case GatewayHTTP:
		check(strings.TrimSpace(c.Gateway.BaseURL) == "", "GATEWAY_BASE_URL is required when GATEWAY_MODE=http")
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_MODE %q is not one of simulated, http", c.Gateway.Mode))
	}
	check(c.Gateway.Timeout <= 0, "GATEWAY_TIMEOUT must be > 0")
	check(c.Gateway.LatencyScale < 0, "GATEWAY_LATENCY_SCALE must be >= 0")
	check(c.Gateway.SendFailureRate < 0 || c.Gateway.SendFailureRate > 1, "GATEWAY_SEND_FAILURE_RATE must be in [0,1]")
	check(c.Gateway.TokenTTL <= 0, "TOKEN_TTL must be > 0")

	check(c.RateRPS < 0, "RATE_RPS must be >= 0")
	check(c.RateBurst < 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env reads typed values with a fallback. Empty counts as unset.
type env func(string) (string, bool)

func (e env) str(k, def string) string {
	if v, ok := e(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e env) num(k string, def int) int {
	if i, err := strconv.Atoi(e.str(k, "")); err == nil {
		return i
	}
	return def
}

func (e env) u64(k string, def uint64) uint64 {
	if u, err := strconv.ParseUint(e.str(k, ""), 10, 64); err == nil {
		return u
	}
	return def
}

func (e env) float(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(e.str(k, ""), 64); err == nil {
		return f
	}
	return def
}

func (e env) flag(k string, def bool) bool {
	switch strings.ToLower(e.str(k, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func (e env) dur(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.str(k, "")); err == nil {
		return d
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash.
// Empty maps to "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
