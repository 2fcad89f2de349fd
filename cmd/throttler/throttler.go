package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"throttler/internal/admin"
	"throttler/internal/api"
	"throttler/internal/config"
	"throttler/internal/logger"
	"throttler/internal/models"
	"throttler/internal/observability"
	"throttler/internal/ratelimit"
	"throttler/internal/storage"
	"throttler/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closeLog, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the limiter
	stack, err := ratelimit.NewStack(cfg.RateLimit, nil)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	var decider ratelimit.Decider = stack
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedDecider(stack, stack.Primary())
		if err != nil {
			slog.Error("Failed to create instrumented rate limiter", "error", err)
			os.Exit(1)
		}
		defer instrumented.Close()
		decider = instrumented
	}
	gate := ratelimit.NewGate(decider, nil)

	for _, p := range stack.Policies() {
		pc := p.Config()
		slog.Info("Rate limit policy active", "policy", p.Name(), "limit", pc.Limit, "window", pc.Window)
	}

	// Initialize audit storage
	auditStore, err := initializeAuditStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	// Initialize decision statistics
	stats, statsPinger, statsCloser, err := initializeStats(cfg)
	if err != nil {
		slog.Error("Failed to initialize stats", "error", err)
		os.Exit(1)
	}
	if statsCloser != nil {
		defer statsCloser()
	}

	adminService := admin.NewService(stack.Primary(), auditStore, stats, nil)

	handlerOpts := []api.HandlerOption{
		api.WithVersion(ver),
		api.WithTrustProxyHeaders(cfg.RateLimit.TrustProxyHeaders),
	}
	if statsPinger != nil {
		handlerOpts = append(handlerOpts, api.WithHealthCheck("stats", statsPinger))
	}
	handlers := api.NewHandlers(adminService, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{
		api.WithRateLimiter(ratelimit.Middleware(gate, ratelimit.MiddlewareOptions{
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
			Stats:             stats,
		})),
	}
	if otelProvider.TracingEnabled() {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "trust_proxy_headers", cfg.RateLimit.TrustProxyHeaders)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeAuditStore creates the audit store for limit changes and wraps it
// with instrumentation when metrics are enabled.
func initializeAuditStore(cfg *models.Config) (storage.AuditStore, error) {
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return nil, err
	}

	if !cfg.Metrics.Enabled {
		return store, nil
	}

	instrumented, err := observability.NewInstrumentedAuditStore(store, cfg.Storage.Type)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("instrument audit store: %w", err)
	}
	return instrumented, nil
}

// initializeStats creates the decision statistics sink. All returned values
// are nil when stats are disabled; the pinger is set only for remote sinks.
func initializeStats(cfg *models.Config) (ratelimit.StatsStore, api.Pinger, func(), error) {
	if !cfg.Stats.Enabled {
		return nil, nil, nil, nil
	}

	switch cfg.Stats.Type {
	case models.StatsTypeMemory:
		return ratelimit.NewMemoryStatsStore(ratelimit.WithTrackKeys(cfg.Stats.TrackKeys)), nil, nil, nil

	case models.StatsTypeRedis:
		rc := cfg.Stats.Redis
		rdb := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			PoolSize: rc.PoolSize,
		})
		store := ratelimit.NewRedisStatsStore(rdb,
			ratelimit.WithStatsPrefix(rc.Prefix),
			ratelimit.WithStatsTTL(cfg.Stats.TTL),
			ratelimit.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			// Stats are reporting only; start anyway and let /health show it
			slog.Warn("Redis stats sink unreachable", "addr", rc.Addr, "error", err)
		}

		closeFn := func() {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close Redis stats sink", "error", err)
			}
		}
		return store, store, closeFn, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported stats type: %s", cfg.Stats.Type)
	}
}
