package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"throttler/internal/models"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type contextKey string

const adminAuthenticatedKey contextKey = "admin_authenticated"

func isAdminAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(adminAuthenticatedKey).(bool)
	return ok
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError,
					models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// adminAuthMiddleware requires "Authorization: Bearer <token>" on admin
// routes. The comparison runs in constant time.
func adminAuthMiddleware(token string) mux.MiddlewareFunc {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization required")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				unauthorized(w, "Invalid authorization format")
				return
			}

			provided := []byte(strings.TrimSpace(authHeader[len(prefix):]))
			if subtle.ConstantTimeCompare(provided, expected) != 1 {
				slog.Warn("Rejected admin request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				unauthorized(w, "Invalid admin token")
				return
			}

			ctx := context.WithValue(r.Context(), adminAuthenticatedKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="throttler"`)
	writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(message, models.ErrorCodeUnauthorized))
}

// adminThrottleMiddleware shares one token bucket between all admin callers.
func adminThrottleMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests,
					models.NewErrorResponse("Too many admin requests", models.ErrorCodeRateLimitExceeded))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
