package observability

import (
	"context"
	"time"

	"throttler/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	outcomeAllowed = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "allowed")))
	outcomeDenied  = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "denied")))
)

// InstrumentedDecider wraps a ratelimit.Decider and counts its decisions.
// It also reports the primary policy's tracked keys and active limit as
// observable gauges.
type InstrumentedDecider struct {
	inner        ratelimit.Decider
	decisions    metric.Int64Counter
	registration metric.Registration
}

var _ ratelimit.Decider = (*InstrumentedDecider)(nil)

// NewInstrumentedDecider instruments inner. primary supplies the gauge values.
func NewInstrumentedDecider(inner ratelimit.Decider, primary *ratelimit.Policy) (*InstrumentedDecider, error) {
	meter := otel.Meter("throttler/ratelimit")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of rate limit decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	keys, err := meter.Int64ObservableGauge(
		"ratelimit.keys",
		metric.WithDescription("Number of keys with a tracked window"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	limit, err := meter.Int64ObservableGauge(
		"ratelimit.limit",
		metric.WithDescription("Active request limit per window"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(keys, int64(primary.Store().Len()))
		o.ObserveInt64(limit, int64(primary.Limit()))
		return nil
	}, keys, limit)
	if err != nil {
		return nil, err
	}

	return &InstrumentedDecider{
		inner:        inner,
		decisions:    decisions,
		registration: reg,
	}, nil
}

// Decide delegates to the wrapped decider and counts the outcome.
func (d *InstrumentedDecider) Decide(key string, now time.Time) ratelimit.Decision {
	decision := d.inner.Decide(key, now)

	outcome := outcomeAllowed
	if !decision.Allowed {
		outcome = outcomeDenied
	}
	d.decisions.Add(context.Background(), 1, outcome)

	return decision
}

// Close unregisters the gauge callback.
func (d *InstrumentedDecider) Close() error {
	return d.registration.Unregister()
}
