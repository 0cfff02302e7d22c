// Package config reads service settings from EMUSE_* environment variables,
// after loading an optional .env file.
//
// EMUSE_COOKIE_SECURE defaults to true only in production so the session
// cookie survives plain http://localhost during development.
// EMUSE_TRUST_PROXY makes the service take the client address from
// CF-Connecting-IP or X-Forwarded-For; enable it only behind a proxy that
// overwrites those headers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultCookieSecret signs cookies in development only.
	DefaultCookieSecret = "emuse-development-secret-change-me"
)

type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string
	Port        string
	BaseURL     string

	DatabaseDriver string
	DatabaseURL    string
	DBMinConns     int
	DBMaxConns     int
	AcquireTimeout time.Duration

	CookieName     string
	CookieSecret   string
	CookieSecure   bool
	SessionTTL     time.Duration
	SessionBackend string
	RedisURL       string
	SweepInterval  time.Duration

	TurnstileSiteKey   string
	TurnstileSecretKey string
	TurnstileVerifyURL string
	TurnstileTimeout   time.Duration

	PostmarkToken string
	FromAddress   string
	FromName      string

	LoginRateLimit int
	RateWindow     time.Duration
	TrustProxy     bool
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	p := &parser{}
	env := strings.ToLower(getEnv("EMUSE_ENV", EnvDevelopment))
	cfg := &Config{
		Environment: env,
		LogLevel:    getEnv("EMUSE_LOG_LEVEL", "info"),
		LogFormat:   getEnv("EMUSE_LOG_FORMAT", "text"),
		Port:        getEnv("EMUSE_PORT", "8000"),
		BaseURL:     strings.TrimRight(getEnv("EMUSE_BASE_URL", "http://localhost:8000"), "/"),

		DatabaseDriver: getEnv("EMUSE_DB_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("EMUSE_DB_URL", "emuse.db"),
		DBMinConns:     p.int("EMUSE_DB_MIN_CONNS", 2),
		DBMaxConns:     p.int("EMUSE_DB_MAX_CONNS", 10),
		AcquireTimeout: p.duration("EMUSE_DB_ACQUIRE_TIMEOUT", 5*time.Second),

		CookieName:     getEnv("EMUSE_COOKIE_NAME", "cookie"),
		CookieSecret:   getEnv("EMUSE_COOKIE_SECRET", DefaultCookieSecret),
		CookieSecure:   p.bool("EMUSE_COOKIE_SECURE", env == EnvProduction),
		SessionTTL:     p.duration("EMUSE_SESSION_TTL", 24*time.Hour),
		SessionBackend: strings.ToLower(getEnv("EMUSE_SESSION_BACKEND", "memory")),
		RedisURL:       getEnv("EMUSE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SweepInterval:  p.duration("EMUSE_SESSION_SWEEP_INTERVAL", 5*time.Minute),

		TurnstileSiteKey:   getEnv("EMUSE_TURNSTILE_SITE_KEY", ""),
		TurnstileSecretKey: getEnv("EMUSE_TURNSTILE_SECRET_KEY", ""),
		TurnstileVerifyURL: getEnv("EMUSE_TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		TurnstileTimeout:   p.duration("EMUSE_TURNSTILE_TIMEOUT", 10*time.Second),

		PostmarkToken: getEnv("EMUSE_POSTMARK_TOKEN", ""),
		FromAddress:   getEnv("EMUSE_FROM_ADDRESS", "noreply@emuse.org"),
		FromName:      getEnv("EMUSE_FROM_NAME", "eMuse"),

		LoginRateLimit: p.int("EMUSE_LOGIN_RATE_LIMIT", 10),
		RateWindow:     p.duration("EMUSE_RATE_WINDOW", time.Minute),
		TrustProxy:     p.bool("EMUSE_TRUST_PROXY", false),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate checks the settings that must hold in every environment and the
// stricter ones production requires.
func (c *Config) Validate() error {
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool size: min %d, max %d", c.DBMinConns, c.DBMaxConns)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("EMUSE_SESSION_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("EMUSE_SESSION_SWEEP_INTERVAL must be positive")
	}
	switch c.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("EMUSE_SESSION_BACKEND must be memory or redis, got %q", c.SessionBackend)
	}
	if c.CookieSecret == "" {
		return fmt.Errorf("EMUSE_COOKIE_SECRET is required")
	}

	if c.Environment == EnvProduction {
		if c.CookieSecret == DefaultCookieSecret || len(c.CookieSecret) < 32 {
			return fmt.Errorf("EMUSE_COOKIE_SECRET must be set to at least 32 characters in production")
		}
		if c.TurnstileSecretKey == "" {
			return fmt.Errorf("EMUSE_TURNSTILE_SECRET_KEY is required in production")
		}
		if !c.IsPostgres() {
			return fmt.Errorf("EMUSE_DB_DRIVER must be postgres in production")
		}
	}
	return nil
}

func (c *Config) IsPostgres() bool {
	switch c.DatabaseDriver {
	case "pgx", "postgres", "postgresql":
		return true
	}
	return false
}

// From is the sender as it appears in the From header.
func (c *Config) From() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromAddress)
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func (p *parser) bool(key string, defaultValue bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}
