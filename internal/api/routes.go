package api

import (
	"net/http"
	"slices"

	"throttler/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"golang.org/x/time/rate"
)

// livenessPaths answer with Liveness. /flask-health-check is kept for load
// balancers configured against the previous deployment.
var livenessPaths = []string{"/health/live", "/flask-health-check"}

type routeOptions struct {
	middleware  []mux.MiddlewareFunc
	rateLimiter mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeOptions)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(o *routeOptions) {
		o.middleware = append(o.middleware, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && !slices.Contains(livenessPaths, r.URL.Path)
			}),
		))
	}
}

// WithRateLimiter installs the per-IP limiter on the throttled routes. Admin,
// info and health routes are never counted.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.rateLimiter = middleware
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := mux.NewRouter()
	for _, mw := range o.middleware {
		router.Use(mw)
	}

	limited := router.NewRoute().Subrouter()
	if o.rateLimiter != nil {
		limited.Use(o.rateLimiter)
	}
	limited.HandleFunc("/", handlers.Greeting).Methods("GET")
	limited.HandleFunc("/api/resource", handlers.Resource).Methods("GET")

	// Full paths on a plain subrouter; a PathPrefix subrouter reports a
	// wrong method on /rate_limit as 404.
	adminRouter := router.NewRoute().Subrouter()
	if rps := config.Security.AdminRequestsPerSecond; rps > 0 {
		adminRouter.Use(adminThrottleMiddleware(rate.NewLimiter(rate.Limit(rps), config.Security.AdminBurst)))
	}
	if config.Security.AdminToken != "" {
		adminRouter.Use(adminAuthMiddleware(config.Security.AdminToken))
	}
	adminRouter.HandleFunc("/rate_limit", handlers.GetRateLimit).Methods("GET")
	adminRouter.HandleFunc("/rate_limit", handlers.UpdateRateLimit).Methods("POST")
	adminRouter.HandleFunc("/rate_limit/history", handlers.RateLimitHistory).Methods("GET")
	adminRouter.HandleFunc("/rate_limit/stats", handlers.RateLimitStats).Methods("GET")
	adminRouter.HandleFunc("/rate_limit/keys/{key}", handlers.PeekKey).Methods("GET")

	router.HandleFunc("/info", handlers.Info).Methods("GET")
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	for _, path := range livenessPaths {
		router.HandleFunc(path, handlers.Liveness).Methods("GET")
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed,
		models.NewErrorResponse("Method not allowed", models.ErrorCodeMethodNotAllowed))
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound,
		models.NewErrorResponse("Not found", models.ErrorCodeNotFound))
}
