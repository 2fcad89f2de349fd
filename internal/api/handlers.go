package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"throttler/internal/admin"
	"throttler/internal/clock"
	"throttler/internal/models"
	"throttler/internal/ratelimit"
	"throttler/internal/version"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthCheck struct {
	name   string
	pinger Pinger
}

// Handlers contains HTTP handlers for the throttler API
type Handlers struct {
	admin             admin.ServiceInterface
	version           version.Info
	clock             clock.Clock
	trustProxyHeaders bool
	healthChecks      []healthCheck
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithVersion sets the build information reported by the health endpoint.
func WithVersion(ver version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = ver
	}
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) HandlerOption {
	return func(h *Handlers) {
		h.clock = c
	}
}

// WithTrustProxyHeaders makes the admin handlers attribute requests to the
// proxied client address rather than the connection address.
func WithTrustProxyHeaders(trust bool) HandlerOption {
	return func(h *Handlers) {
		h.trustProxyHeaders = trust
	}
}

// WithHealthCheck adds a dependency to the health report. A failing
// dependency marks the service degraded.
func WithHealthCheck(name string, p Pinger) HandlerOption {
	return func(h *Handlers) {
		h.healthChecks = append(h.healthChecks, healthCheck{name: name, pinger: p})
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(adminService admin.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		admin:   adminService,
		version: version.GetInfo(),
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Greeting handles the rate limited root endpoint
// GET /
func (h *Handlers) Greeting(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Hello, world!"})
}

// Resource handles the second rate limited endpoint
// GET /api/resource
func (h *Handlers) Resource(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Resource accessed successfully"})
}

// Info echoes how the service sees the caller
// GET /info
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	connecting := r.Header.Get("X-Real-IP")
	if connecting == "" {
		connecting = ratelimit.NormalizeKey(r.RemoteAddr)
	}

	h.writeJSONResponse(w, http.StatusOK, models.InfoResponse{
		ConnectingIP: connecting,
		ProxyIP:      r.Header.Get("X-Forwarded-For"),
		Host:         r.Host,
		UserAgent:    r.UserAgent(),
	})
}

// HealthCheck reports the limiter configuration and the state of its
// dependencies. Throttling never depends on them, so a failing dependency
// degrades the service instead of making it unhealthy.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = h.version.Uptime(h.clock.Now()).Round(time.Second).String()

	cfg := h.admin.GetConfig(ctx)
	response.AddComponent("rate_limiter", models.StatusHealthy, "Rate limiter is operational")
	response.AddMetric("limit", cfg.Limit)
	response.AddMetric("window_seconds", cfg.WindowSeconds)

	checks := append([]healthCheck{{name: "audit_store", pinger: h.admin}}, h.healthChecks...)
	for _, check := range checks {
		if err := check.pinger.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "component", check.name, "error", err)
			response.Status = models.StatusDegraded
			response.AddComponent(check.name, models.StatusUnhealthy, err.Error())
			continue
		}
		response.AddComponent(check.name, models.StatusHealthy, "")
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// Liveness answers as long as the process serves HTTP
// GET /health/live
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; only log
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
