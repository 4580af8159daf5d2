package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
)

// DefaultAdminMinDuration is the minimum time spent on an admin token check,
// so failures and successes take the same time.
const DefaultAdminMinDuration = 200 * time.Millisecond

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger
	// TokenHash is the argon2id hash of the admin token. Empty disables
	// the admin API.
	TokenHash string
	// MinDuration pads every check. Zero disables padding.
	MinDuration time.Duration
}

// AdminAuth returns a middleware that admits requests carrying the admin
// token as "Authorization: Bearer <token>".
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.TokenHash == "" {
				writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
				return
			}

			start := time.Now()
			pad := func() {
				if elapsed := time.Since(start); elapsed < cfg.MinDuration {
					time.Sleep(cfg.MinDuration - elapsed)
				}
			}

			token := extractBearerToken(r)
			if token == "" {
				pad()
				logAdminFailure(cfg.Logger, r, "missing_token")
				writeAdminAuthError(w)
				return
			}

			ok, err := auth.VerifyToken(token, cfg.TokenHash)
			pad()
			if err != nil {
				cfg.Logger.Error("admin token hash is unusable",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAdminAuthError(w)
				return
			}
			if !ok {
				logAdminFailure(cfg.Logger, r, "invalid_token")
				writeAdminAuthError(w)
				return
			}

			op := &auth.Operator{
				TokenPrefix: model.RedactKey(token),
				RemoteAddr:  getClientIP(r),
			}
			ctx := auth.ContextWithOperator(r.Context(), op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminThrottle limits admin requests per client IP with a sliding window.
func AdminThrottle(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many admin requests")
		}),
	)
}

// extractBearerToken returns the token of an "Authorization: Bearer" header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func logAdminFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("admin authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAdminAuthError uses one message for every failure.
func writeAdminAuthError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="keygate-admin"`)
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing admin token")
}
