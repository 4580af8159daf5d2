package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/middleware"
)

// routerConfig carries everything setupRouter mounts.
type routerConfig struct {
	Logger *slog.Logger

	Health   *handler.HealthHandler
	Keys     *handler.KeyHandler
	Counters *handler.CountersHandler
	Admin    *handler.AdminHandler
	Metrics  http.Handler

	RateLimiter middleware.IPRateLimiter
	RateLimit   middleware.RateLimitConfig
	AdminAuth   middleware.AdminAuthConfig
	// AdminPerMinute throttles admin requests per client IP.
	AdminPerMinute int

	CORS          middleware.CORSConfig
	IsDevelopment bool
	MaxBodySize   int64
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(cfg routerConfig) *chi.Mux {
	h := handler.New()
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

	// Probes and metrics
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	rateLimitCfg := cfg.RateLimit
	rateLimitCfg.Logger = cfg.Logger
	rateLimitCfg.Limiter = cfg.RateLimiter

	adminAuthCfg := cfg.AdminAuth
	adminAuthCfg.Logger = cfg.Logger

	r.Route("/api", func(r chi.Router) {
		// Public key endpoints, limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Post("/generate-key", cfg.Keys.Generate)
			r.Post("/verify-key", cfg.Keys.Verify)
		})

		r.Get("/counters", cfg.Counters.Get)
		r.Get("/counters/stream", cfg.Counters.Stream)

		// Operator endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminThrottle(cfg.AdminPerMinute))
			r.Use(middleware.AdminAuth(adminAuthCfg))
			r.Get("/keys/{user_id}", cfg.Admin.GetKey)
			r.Delete("/devices/{user_id}", cfg.Admin.ResetDevice)
			r.Post("/sweep", cfg.Admin.Sweep)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
