package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"throttler/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the scrape endpoint on its own port so that
// Prometheus never passes through the rate limited router.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer builds the server for cfg. Without a metrics-enabled
// provider every path answers 404.
func NewMetricsServer(cfg models.MetricsConfig, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.MetricsEnabled() {
		mux.Handle("GET "+cfg.Path, promhttp.HandlerFor(provider.Gatherer(), promhttp.HandlerOpts{
			ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr is the configured listen address.
func (ms *MetricsServer) Addr() string {
	return ms.server.Addr
}

// Handler exposes the mux for in-process scrapes.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start listens on the configured address and blocks until Shutdown, which
// makes it return http.ErrServerClosed.
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return ms.Serve(ln)
}

// Serve accepts scrapes on ln.
func (ms *MetricsServer) Serve(ln net.Listener) error {
	slog.Info("Starting metrics server", "addr", ln.Addr().String())
	return ms.server.Serve(ln)
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
