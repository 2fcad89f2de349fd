package observability

import (
	"context"
	"time"

	"throttler/internal/models"
	"throttler/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedAuditStore traces every audit store call and records its
// latency and failures, labelled by operation and backend.
type InstrumentedAuditStore struct {
	inner    storage.AuditStore
	backend  attribute.KeyValue
	tracer   trace.Tracer
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

var _ storage.AuditStore = (*InstrumentedAuditStore)(nil)

// NewInstrumentedAuditStore wraps inner. backend is the storage type, e.g.
// "sqlite".
func NewInstrumentedAuditStore(inner storage.AuditStore, backend string) (*InstrumentedAuditStore, error) {
	meter := otel.Meter("throttler/audit")

	duration, err := meter.Float64Histogram(
		"throttler.audit.duration",
		metric.WithDescription("Latency of audit store operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"throttler.audit.errors",
		metric.WithDescription("Failed audit store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedAuditStore{
		inner:    inner,
		backend:  attribute.String("backend", backend),
		tracer:   otel.Tracer("throttler/audit"),
		duration: duration,
		failures: failures,
	}, nil
}

// observe runs fn inside a span named after op and records the outcome.
func observe[T any](ctx context.Context, s *InstrumentedAuditStore, op string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	operation := attribute.String("operation", op)
	ctx, span := s.tracer.Start(ctx, "audit."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, operation, s.backend)...),
	)
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)

	labels := metric.WithAttributes(operation, s.backend)
	s.duration.Record(ctx, time.Since(start).Seconds(), labels)
	if err != nil {
		s.failures.Add(ctx, 1, labels)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *InstrumentedAuditStore) RecordLimitChange(ctx context.Context, change *models.LimitChange) error {
	_, err := observe(ctx, s, "record", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.RecordLimitChange(ctx, change)
	},
		attribute.Int("limit.previous", change.PreviousLimit),
		attribute.Int("limit.new", change.NewLimit),
	)
	return err
}

func (s *InstrumentedAuditStore) LimitChanges(ctx context.Context, n int) ([]*models.LimitChange, error) {
	return observe(ctx, s, "list", func(ctx context.Context) ([]*models.LimitChange, error) {
		return s.inner.LimitChanges(ctx, n)
	}, attribute.Int("list.size", n))
}

func (s *InstrumentedAuditStore) CountLimitChanges(ctx context.Context) (int, error) {
	return observe(ctx, s, "count", s.inner.CountLimitChanges)
}

func (s *InstrumentedAuditStore) Ping(ctx context.Context) error {
	_, err := observe(ctx, s, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Ping(ctx)
	})
	return err
}

// Close is not instrumented.
func (s *InstrumentedAuditStore) Close() error {
	return s.inner.Close()
}
