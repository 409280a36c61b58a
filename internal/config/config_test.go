package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	want := Config{
		Port:              "8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		GinMode:           "release",
		LogLevel:          "info",
		APIBasePath:       "/api/v1",
		DBPath:            "chatverse.db",
		Chat: ChatConfig{
			InitialCredits: 100,
			MessageCost:    1,
			NotifyInterval: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Mode:         GatewaySimulated,
			Timeout:      10 * time.Second,
			LatencyScale: 1,
			JWTSecret:    "chatverse-dev-secret",
			TokenTTL:     24 * time.Hour,
		},
		RateRPS:        20,
		RateBurst:      40,
		Security:       SecurityConfig{HSTSMaxAge: 180 * 24 * time.Hour},
		IdempotencyTTL: 24 * time.Hour,
		OTEL: OTELConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "chatverse",
			SampleRatio: 1,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("defaults (-want +got):\n%s", diff)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
}

func TestLoadFrom_OverridesAndNormalization(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"PORT":                        ":9000",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               " api/v2/ ",
		"INITIAL_CREDITS":             "25",
		"MESSAGE_COST":                "2",
		"NOTIFY_INTERVAL":             "5s",
		"NOTIFY_CATALOG":              "notices.yaml",
		"NOTIFY_SEED":                 "42",
		"GATEWAY_MODE":                "HTTP",
		"GATEWAY_BASE_URL":            "http://chat.local/api",
		"GATEWAY_LATENCY_SCALE":       "0",
		"GATEWAY_SEND_FAILURE_RATE":   "0.25",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Addr() != ":9000" || cfg.GinMode != "release" || cfg.LogLevel != "warn" {
		t.Fatalf("server: addr=%q gin=%q log=%q", cfg.Addr(), cfg.GinMode, cfg.LogLevel)
	}
	if !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if diff := cmp.Diff(ChatConfig{25, 2, 5 * time.Second, "notices.yaml", 42}, cfg.Chat); diff != "" {
		t.Fatalf("chat (-want +got):\n%s", diff)
	}
	if cfg.Gateway.Mode != GatewayHTTP || cfg.Gateway.LatencyScale != 0 || cfg.Gateway.SendFailureRate != 0.25 {
		t.Fatalf("gateway: %+v", cfg.Gateway)
	}
	if cfg.RateRPS != 20 || cfg.RateBurst != 40 {
		t.Fatalf("unparsable rate settings should fall back: %v %v", cfg.RateRPS, cfg.RateBurst)
	}
	if diff := cmp.Diff([]string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins); diff != "" {
		t.Fatalf("origins (-want +got):\n%s", diff)
	}
	if !cfg.Security.EnableHSTS || !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("security/otel: %+v %+v", cfg.Security, cfg.OTEL)
	}
}

func TestLoadFrom_ReportsEveryProblem(t *testing.T) {
	_, err := LoadFrom(lookupMap(map[string]string{
		"LOG_LEVEL":                 "verbose",
		"READ_TIMEOUT":              "0s",
		"MESSAGE_COST":              "0",
		"INITIAL_CREDITS":           "-1",
		"GATEWAY_MODE":              "http",
		"GATEWAY_SEND_FAILURE_RATE": "1.5",
		"RATE_BURST":                "0",
		"OTEL_TRACES_SAMPLER_ARG":   "2",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{
		`LOG_LEVEL "verbose"`,
		"server timeouts must be positive",
		"MESSAGE_COST must be >= 1",
		"INITIAL_CREDITS must be >= 0",
		"GATEWAY_BASE_URL is required",
		"GATEWAY_SEND_FAILURE_RATE must be in [0,1]",
		"RATE_BURST must be >= 1",
		"OTEL_TRACES_SAMPLER_ARG must be in [0,1]",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in:\n%v", want, err)
		}
	}
}

func TestValidate_Cases(t *testing.T) {
	base, err := LoadFrom(lookupMap(nil))
	if err != nil {
		t.Fatalf("base: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = " " }, "PORT"},
		{"header bytes", func(c *Config) { c.MaxHeaderBytes = 0 }, "MAX_HEADER_BYTES"},
		{"db path", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"notify interval", func(c *Config) { c.Chat.NotifyInterval = 0 }, "NOTIFY_INTERVAL"},
		{"gateway mode", func(c *Config) { c.Gateway.Mode = "grpc" }, "GATEWAY_MODE"},
		{"gateway timeout", func(c *Config) { c.Gateway.Timeout = 0 }, "GATEWAY_TIMEOUT"},
		{"latency scale", func(c *Config) { c.Gateway.LatencyScale = -1 }, "GATEWAY_LATENCY_SCALE"},
		{"token ttl", func(c *Config) { c.Gateway.TokenTTL = 0 }, "TOKEN_TTL"},
		{"rate rps", func(c *Config) { c.RateRPS = -1 }, "RATE_RPS"},
		{"hsts", func(c *Config) { c.Security.HSTSMaxAge = -time.Second }, "HSTS_MAX_AGE"},
		{"idempotency ttl", func(c *Config) { c.IdempotencyTTL = 0 }, "IDEMPOTENCY_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if cfg := MustLoad(); cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}

	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestEnvHelpers(t *testing.T) {
	e := env(lookupMap(map[string]string{
		"S": "  v  ", "BLANK": "   ", "N": "7", "BADN": "7x", "U": "18446744073709551615",
		"F": "1.5", "B1": "Y", "B0": "off", "BX": "maybe", "D": "90s",
	}))
	if e.str("S", "d") != "v" || e.str("BLANK", "d") != "d" || e.str("MISSING", "d") != "d" {
		t.Fatalf("str")
	}
	if e.num("N", 1) != 7 || e.num("BADN", 1) != 1 {
		t.Fatalf("num")
	}
	if e.u64("U", 0) != ^uint64(0) || e.u64("N", 0) != 7 {
		t.Fatalf("u64")
	}
	if e.float("F", 0) != 1.5 || e.float("S", 2) != 2 {
		t.Fatalf("float")
	}
	if !e.flag("B1", false) || e.flag("B0", true) || !e.flag("BX", true) {
		t.Fatalf("flag")
	}
	if e.dur("D", 0) != 90*time.Second || e.dur("N", time.Second) != time.Second {
		t.Fatalf("dur")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":          "/",
		"/":         "/",
		"api":       "/api",
		"/api/v1/":  "/api/v1",
		" //api// ": "/api",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
