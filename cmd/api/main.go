// Package main is the entrypoint for the keygate API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/counters"
	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/sweeper"
)

func main() {
	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	if cfg.DBAutoSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply schema", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
		logger.Info("database schema ready")
	}

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize services
	metricsRecorder := metrics.NewPrometheus()

	// Interface-typed so a disabled cache stays a true nil.
	var verifyCache service.VerifyCache
	if cfg.VerifyCacheEnabled {
		verifyCache = cacheClient
	}

	keyService := service.NewKeyService(repo, verifyCache, cacheClient, logger, metricsRecorder, service.KeyServiceConfig{
		KeyTTL:           cfg.KeyTTL,
		RequireKnownUser: cfg.KeyRequireKnownUser,
	})
	countersService := counters.NewService(repo, nil)
	hub := counters.NewHub(countersService, cacheClient, logger, metricsRecorder)
	hub.SetRefreshInterval(cfg.CountersRefreshInterval)
	sweepWorker := sweeper.NewWorker(repo, cacheClient, logger, metricsRecorder, cfg.KeySweepInterval, cfg.KeySweepRetention)

	// Initialize handlers
	r := setupRouter(routerConfig{
		Logger:   logger,
		Health:   handler.NewHealthHandler(repo, cacheClient, logger),
		Keys:     handler.NewKeyHandler(keyService, logger),
		Counters: handler.NewCountersHandler(countersService, hub, logger),
		Admin:    handler.NewAdminHandler(keyService, sweepWorker, logger),
		Metrics:  metricsRecorder.Handler(),

		RateLimiter: cacheClient,
		RateLimit: middleware.RateLimitConfig{
			Enabled: cfg.RateLimitEnabled,
			RPS:     cfg.RateLimitRPS,
			Burst:   cfg.RateLimitBurst,
		},
		AdminAuth: middleware.AdminAuthConfig{
			TokenHash:   cfg.AdminTokenHash,
			MinDuration: middleware.DefaultAdminMinDuration,
		},
		AdminPerMinute: cfg.AdminRateLimitPerMinute,

		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.GetCORSAllowedOrigins(),
			MaxAge:         middleware.DefaultCORSConfig().MaxAge,
		},
		IsDevelopment: cfg.IsDevelopment(),
		MaxBodySize:   cfg.MaxRequestBodySize,
	})

	// Create and run server
	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Background workers. Registered first so they stop last.
	if cfg.KeySweepInterval > 0 {
		go func() {
			if err := sweepWorker.Run(ctx); err != nil {
				logger.Error("sweeper stopped", "error", err)
			}
		}()
		srv.OnShutdown("sweeper", sweepWorker.Shutdown)
	}

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, counters.ErrHubClosed) {
			logger.Error("counters hub stopped", "error", err)
		}
	}()
	srv.OnDrain("counters hub", hub.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"key_ttl", cfg.KeyTTL,
		"verify_cache", cfg.VerifyCacheEnabled,
		"sweep_interval", cfg.KeySweepInterval,
		"admin_api", cfg.AdminTokenHash != "",
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
