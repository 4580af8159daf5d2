// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	// Apply the embedded schema at startup.
	DBAutoSchema bool `env:"DB_AUTO_SCHEMA" envDefault:"true"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Access keys
	KeyTTL              time.Duration `env:"KEY_TTL" envDefault:"6h"`
	KeyRequireKnownUser bool          `env:"KEY_REQUIRE_KNOWN_USER" envDefault:"true"`
	VerifyCacheEnabled  bool          `env:"VERIFY_CACHE_ENABLED" envDefault:"true"`

	// Expired key sweeper. A zero interval disables the background worker.
	KeySweepInterval  time.Duration `env:"KEY_SWEEP_INTERVAL" envDefault:"0s"`
	KeySweepRetention time.Duration `env:"KEY_SWEEP_RETENTION" envDefault:"24h"`

	// Counters
	CountersRefreshInterval time.Duration `env:"COUNTERS_REFRESH_INTERVAL" envDefault:"30s"`

	// Rate limiting of the public key endpoints (per client IP)
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Admin API. Empty hash disables the admin routes.
	AdminTokenHash          string `env:"ADMIN_TOKEN_HASH" envDefault:""`
	AdminRateLimitPerMinute int    `env:"ADMIN_RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks values the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.KeyTTL <= 0 {
		errs = append(errs, errors.New("KEY_TTL must be positive"))
	}
	if c.KeySweepInterval < 0 {
		errs = append(errs, errors.New("KEY_SWEEP_INTERVAL must not be negative"))
	}
	if c.KeySweepRetention < 0 {
		errs = append(errs, errors.New("KEY_SWEEP_RETENTION must not be negative"))
	}
	if c.CountersRefreshInterval <= 0 {
		errs = append(errs, errors.New("COUNTERS_REFRESH_INTERVAL must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.AdminTokenHash != "" && c.AdminRateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("ADMIN_RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a Config.
// Outside production a .env file in the working directory is read first;
// variables already set in the environment win.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// A missing .env file is fine.
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
