// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Rich error information with codes and details for debugging
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// MessageResponse is the body of the rate limited greeting and resource
// endpoints, and of successful admin mutations without extra payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RateLimitConfigResponse describes the active limiter configuration.
//
// Window is rendered as a Go duration string ("1m0s") for humans and as
// whole seconds for clients that compute reset times.
type RateLimitConfigResponse struct {
	Limit         int    `json:"limit"`
	Window        string `json:"window"`
	WindowSeconds int64  `json:"window_seconds"`
}

func NewRateLimitConfigResponse(limit int, window time.Duration) RateLimitConfigResponse {
	return RateLimitConfigResponse{
		Limit:         limit,
		Window:        window.String(),
		WindowSeconds: int64(window / time.Second),
	}
}

type UpdateRateLimitResponse struct {
	Message       string                  `json:"message"`
	PreviousLimit int                     `json:"previous_limit"`
	Config        RateLimitConfigResponse `json:"config"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type RateLimitHistoryResponse struct {
	Changes    []LimitChange `json:"changes"`
	TotalCount int           `json:"total_count"`
}

// DecisionCounts is one row of the stats breakdown.
type DecisionCounts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// RateLimitStatsResponse reports aggregated decisions. TrackedKeys is the
// number of keys currently held by the primary counter store. Routes and Keys
// are present when the stats sink breaks counts down; Keys only with key
// tracking on.
type RateLimitStatsResponse struct {
	Allowed     int64                     `json:"allowed"`
	Denied      int64                     `json:"denied"`
	TrackedKeys int                       `json:"tracked_keys"`
	Routes      map[string]DecisionCounts `json:"routes,omitempty"`
	Keys        map[string]DecisionCounts `json:"keys,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// KeyWindowResponse is a read-only view of one key's current window.
// Active is false when the key has no live window; Count is then zero.
type KeyWindowResponse struct {
	Key         string     `json:"key"`
	Active      bool       `json:"active"`
	Count       int64      `json:"count"`
	Limit       int        `json:"limit"`
	Remaining   int        `json:"remaining"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	ResetAt     *time.Time `json:"reset_at,omitempty"`
}

// InfoResponse echoes how the service sees the caller. Field names follow the
// header they come from.
type InfoResponse struct {
	ConnectingIP string `json:"connecting_ip"`
	ProxyIP      string `json:"proxy_ip"`
	Host         string `json:"host"`
	UserAgent    string `json:"user-agent"`
}

// ErrorResponse provides structured error information with debugging context.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - Details map for field-specific validation errors
// - Request ID for distributed tracing and support
//
// Error Categories:
// - Validation errors: Input format/constraint violations
// - Throttling errors: Caller exceeded its quota
// - Authorization errors: Missing or wrong admin token
// - Internal errors: Server-side issues
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]any             `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
//
// Health Monitoring:
// - Healthy: All systems operational
// - Degraded: A reporting dependency is down, throttling still works
// - Unhealthy: Major issues affecting core functionality
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeInvalidLimit       = "INVALID_LIMIT"       // 400: Rate limit value rejected
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"  // 405: Wrong HTTP method
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Caller over quota
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Admin token required
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Dependency down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]any),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value any) {
	h.Metrics[name] = value
}
