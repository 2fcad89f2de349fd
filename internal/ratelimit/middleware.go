package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"throttler/internal/models"
)

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	// TrustProxyHeaders makes the caller address come from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	// Stats, if set, receives every decision.
	Stats StatsStore
}

// Middleware returns HTTP middleware that enforces gate's decisions. Rate
// limit headers are set on every response; rejected requests get 429 with a
// JSON error body and never reach next.
func Middleware(gate *Gate, opts MiddlewareOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Handle(ClientAddr(r, opts.TrustProxyHeaders))

			if opts.Stats != nil {
				ev := StatsEvent{
					Key:     d.Key,
					Allowed: d.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      gate.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					slog.Debug("Failed to record rate limit stats", "error", err)
				}
			}

			SetHeaders(w, d)

			if !d.Allowed {
				retryAfterSecs := retryAfterSeconds(d)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Too many requests", models.ErrorCodeRateLimitExceeded)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Rate limit exceeded",
					"key", d.Key,
					"limit", d.Limit,
					"count", d.Count,
					"retry_after", retryAfterSecs,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for d.
func SetHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(d Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ClientAddr returns the caller's address. Proxy headers are consulted only
// when trusted; otherwise the connection's RemoteAddr is used.
func ClientAddr(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	return r.RemoteAddr
}
