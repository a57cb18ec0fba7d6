package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	CartTTL            time.Duration
	CartSweepInterval  time.Duration
	CartLockTTL        time.Duration
	CatalogCacheTTL    time.Duration
	FamilyRates        pricing.Rates
	CheckoutRateLimit  string
	IdempotencyTTL     time.Duration
	PaymentProvider    string
	PaymentBaseURL     string
	PaymentAPIKey      string
	PaymentTimeout     time.Duration
	PaymentMaxAttempts int
	BreakerMinRequests int
	BreakerFailRatio   float64
	BreakerOpenFor     time.Duration
	WorkerConcurrency  int
	MaxBodyBytes       int64
	ShutdownTimeout    time.Duration

	Obs Observability
}

// Observability groups logging, metrics and tracing settings.
type Observability struct {
	LogFormat       string
	LogLevel        string
	MetricsEnabled  bool
	MetricsNS       string
	TracingEnabled  bool
	OTLPEndpoint    string
	TraceSampleRate float64
	ServiceName     string
	PprofEnabled    bool
	PprofUser       string
	PprofPass       string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	defaults := pricing.DefaultRates()
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartTTL:           parseDuration(k.String("CART_TTL"), "30m"),
		CartSweepInterval: parseDuration(k.String("CART_SWEEP_INTERVAL"), "1m"),
		CartLockTTL:       parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		FamilyRates: pricing.Rates{
			SingleCourseBps: parseInt64(k.String("FAMILY_RATE_SINGLE_BPS"), defaults.SingleCourseBps),
			TwoCoursesBps:   parseInt64(k.String("FAMILY_RATE_TWO_BPS"), defaults.TwoCoursesBps),
			ThreePlusBps:    parseInt64(k.String("FAMILY_RATE_THREE_PLUS_BPS"), defaults.ThreePlusBps),
			ToddlerBps:      parseInt64(k.String("TODDLER_FAMILY_RATE_BPS"), defaults.ToddlerBps),
		},
		CheckoutRateLimit:  valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "10-M"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		PaymentProvider:    strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "mock")),
		PaymentBaseURL:     strings.TrimSpace(k.String("PAYMENT_BASE_URL")),
		PaymentAPIKey:      k.String("PAYMENT_API_KEY"),
		PaymentTimeout:     parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
		PaymentMaxAttempts: parseInt(k.String("PAYMENT_MAX_ATTEMPTS"), 3),
		BreakerMinRequests: parseInt(k.String("PAYMENT_BREAKER_MIN_REQUESTS"), 5),
		BreakerFailRatio:   parseFloat(k.String("PAYMENT_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:     parseDuration(k.String("PAYMENT_BREAKER_OPEN_FOR"), "30s"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),
		MaxBodyBytes:       parseInt64(k.String("MAX_BODY_BYTES"), 64<<10),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		Obs: Observability{
			LogFormat:       valueOrDefault(k.String("LOG_FORMAT"), "json"),
			LogLevel:        valueOrDefault(k.String("LOG_LEVEL"), "info"),
			MetricsEnabled:  parseBoolDefault(k.String("METRICS_ENABLED"), true),
			MetricsNS:       valueOrDefault(k.String("METRICS_NAMESPACE"), "dansestudio"),
			TracingEnabled:  parseBool(k.String("TRACING_ENABLED")),
			OTLPEndpoint:    strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
			TraceSampleRate: parseFloat(k.String("OTEL_TRACES_SAMPLER_ARG"), 0.1),
			ServiceName:     valueOrDefault(k.String("OTEL_SERVICE_NAME"), "dansestudio-api"),
			PprofEnabled:    parseBool(k.String("PPROF_ENABLED")),
			PprofUser:       strings.TrimSpace(k.String("PPROF_BASIC_AUTH_USER")),
			PprofPass:       k.String("PPROF_BASIC_AUTH_PASS"),
		},
	}

	if cfg.CartTTL <= 0 {
		return nil, errors.New("CART_TTL must be positive")
	}
	switch cfg.PaymentProvider {
	case "mock":
	case "http":
		if cfg.PaymentBaseURL == "" {
			return nil, errors.New("PAYMENT_BASE_URL is required when PAYMENT_PROVIDER=http")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
	if cfg.IsProduction() && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required in production")
	}

	return cfg, nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
