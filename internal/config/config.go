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
)

// MerchantMode selects how the issuance endpoint obtains its merchant.
type MerchantMode string

const (
	// MerchantModeHost resolves the merchant per request from the host header slug.
	MerchantModeHost MerchantMode = "host"
	// MerchantModeStatic uses a single configured merchant for every request.
	MerchantModeStatic MerchantMode = "static"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	CORSAllowedOrigins []string

	// Host parsing rules for merchant slug resolution.
	BaseApex        string
	DevHostSuffixes []string
	PreviewSuffix   string

	// UserAppApex is the apex of the customer-facing app where claims are
	// served; the claim link for a merchant's tenant is built from it.
	UserAppApex  string
	ClaimBaseURL string

	MerchantMode      MerchantMode
	DefaultMerchantID string

	// DemoClaimantID is the placeholder claiming identity used until a real
	// authenticated principal is wired in.
	DemoClaimantID string

	EarnTokenTTL   time.Duration
	PointsPerUnit  int
	AccessTokenTTL time.Duration

	IdempotencyTTL    time.Duration
	AnalyticsCacheTTL time.Duration

	IssueRateWindow time.Duration
	IssueRateMax    int
	GlobalRateLimit string

	WebhookDeliveryEnabled bool
	WebhookRequestTimeout  time.Duration
	WebhookMaxAttempts     int
	WebhookReplayTTL       time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	CacheWarmInterval time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),
		JWTSecret:   k.String("JWT_SECRET"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BaseApex:        strings.ToLower(valueOrDefault(k.String("CONSOLE_BASE_APEX"), "merchantconsole.beachlifeapp.com")),
		DevHostSuffixes: splitAndTrim(valueOrDefault(k.String("DEV_HOST_SUFFIXES"), ".lvh.me,.nip.io")),
		PreviewSuffix:   strings.ToLower(valueOrDefault(k.String("PREVIEW_HOST_SUFFIX"), ".vercel.app")),

		UserAppApex:  strings.ToLower(valueOrDefault(k.String("USER_APP_APEX"), "beachlifeapp.com")),
		ClaimBaseURL: strings.TrimRight(strings.TrimSpace(k.String("CLAIM_BASE_URL")), "/"),

		MerchantMode:      parseMerchantMode(k.String("MERCHANT_MODE")),
		DefaultMerchantID: strings.TrimSpace(k.String("MERCHANT_ID")),

		DemoClaimantID: strings.TrimSpace(k.String("DEMO_USER_ID")),

		EarnTokenTTL:   parseDuration(k.String("EARN_TOKEN_TTL"), "2m"),
		PointsPerUnit:  parseInt(k.String("POINTS_PER_DOLLAR"), 10),
		AccessTokenTTL: parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),

		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		AnalyticsCacheTTL: parseDuration(k.String("ANALYTICS_CACHE_TTL"), "60s"),

		IssueRateWindow: parseDuration(k.String("ISSUE_RATE_WINDOW"), "1m"),
		IssueRateMax:    parseInt(k.String("ISSUE_RATE_MAX"), 60),
		GlobalRateLimit: valueOrDefault(k.String("GLOBAL_RATE_LIMIT"), "300-M"),

		WebhookDeliveryEnabled: parseBool(valueOrDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), "true")),
		WebhookRequestTimeout:  parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "10s"),
		WebhookMaxAttempts:     parseInt(k.String("WEBHOOK_MAX_ATTEMPTS"), 6),
		WebhookReplayTTL:       parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		CacheWarmInterval: parseDuration(k.String("CACHE_WARM_INTERVAL"), "60s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.MerchantMode == MerchantModeStatic && cfg.DefaultMerchantID == "" {
		return nil, errors.New("MERCHANT_ID is required when MERCHANT_MODE=static")
	}

	return cfg, nil
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

func parseMerchantMode(value string) MerchantMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "static", "single", "single-tenant":
		return MerchantModeStatic
	default:
		return MerchantModeHost
	}
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
		return value
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

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
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
