// Package observability wires OpenTelemetry for the throttler: a meter
// provider read by a Prometheus exporter, an optional tracer provider, and
// decorators that instrument the limiter and the audit store.
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"throttler/internal/models"
	"throttler/internal/version"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider owns the SDK providers created by Setup.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	gatherer       promclient.Gatherer
}

// MetricsEnabled reports whether a Prometheus exporter was installed.
func (p *Provider) MetricsEnabled() bool {
	return p.meterProvider != nil
}

// TracingEnabled reports whether a tracer provider was installed.
func (p *Provider) TracingEnabled() bool {
	return p.tracerProvider != nil
}

// Gatherer is what the metrics server scrapes. Nil when metrics are off.
func (p *Provider) Gatherer() promclient.Gatherer {
	return p.gatherer
}

// Shutdown flushes pending spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

type setupOptions struct {
	registry *promclient.Registry
}

// SetupOption customizes Setup.
type SetupOption func(*setupOptions)

// WithRegistry registers the Prometheus exporter with reg instead of the
// process-wide default registry. Tests use it to stay isolated.
func WithRegistry(reg *promclient.Registry) SetupOption {
	return func(o *setupOptions) { o.registry = reg }
}

// Setup installs the global meter and tracer providers selected by the
// configuration. Shut the returned Provider down on exit.
func Setup(metrics models.MetricsConfig, obs models.ObservabilityConfig, ver version.Info, opts ...SetupOption) (*Provider, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(obs, ver)
	if err != nil {
		return nil, err
	}

	p := &Provider{}

	if obs.Tracing.Enabled {
		tp, err := newTracerProvider(res, obs.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		p.tracerProvider = tp
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if metrics.Enabled {
		var registerer promclient.Registerer = promclient.DefaultRegisterer
		p.gatherer = promclient.DefaultGatherer
		if o.registry != nil {
			registerer = o.registry
			p.gatherer = o.registry
		}

		exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
		if err != nil {
			// Flush whatever tracing was started before bailing out
			_ = p.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(p.meterProvider)
	}

	return p, nil
}

func newResource(obs models.ObservabilityConfig, ver version.Info) (*resource.Resource, error) {
	env := obs.Environment
	if env == "" {
		env = "development"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(ver.Version),
			semconv.ServiceInstanceID(ver.InstanceID),
			semconv.HostName(ver.Hostname),
			semconv.DeploymentEnvironment(env),
			attribute.String("vcs.commit", ver.GitCommit),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(res *resource.Resource, cfg models.TracingConfig) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "stdout":
		// Spans go to stderr so they never interleave with JSON logs on stdout
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	case "otlp":
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	), nil
}

// sampler honors the caller's sampling decision and applies rate to new roots.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}
