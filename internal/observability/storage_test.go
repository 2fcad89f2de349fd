package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	"throttler/internal/models"
	"throttler/internal/storage"
	"throttler/internal/version"

	promclient "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestProvider(t *testing.T) *promclient.Registry {
	t.Helper()
	reg := promclient.NewRegistry()
	metrics := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}
	obs := models.ObservabilityConfig{ServiceName: "test"}
	provider, err := Setup(metrics, obs, version.Info{}, WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return reg
}

func gatherFamily(t *testing.T, reg *promclient.Registry, prefix string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func setupMemoryStorage(t *testing.T) storage.AuditStore {
	t.Helper()
	s, err := storage.NewMemoryStorage(storage.Config{Type: "memory"})
	require.NoError(t, err)
	return s
}

func TestInstrumentedAuditStore_Operations(t *testing.T) {
	reg := setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedAuditStore(inner, "memory")
	require.NoError(t, err)

	ctx := context.Background()

	change := models.NewLimitChange(10, 20, time.Minute, "test", "", time.Now())
	require.NoError(t, instrumented.RecordLimitChange(ctx, change))

	changes, err := instrumented.LimitChanges(ctx, 5)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 20, changes[0].NewLimit)

	count, err := instrumented.CountLimitChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.NoError(t, instrumented.Ping(ctx))

	family := gatherFamily(t, reg, "throttler_audit_duration")
	require.NotNil(t, family, "duration histogram not exported")

	operations := map[string]uint64{}
	for _, m := range family.GetMetric() {
		assert.Equal(t, "memory", labelValue(m, "backend"))
		operations[labelValue(m, "operation")] = m.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, map[string]uint64{"record": 1, "list": 1, "count": 1, "ping": 1}, operations)
}

func TestInstrumentedAuditStore_Errors(t *testing.T) {
	reg := setupTestProvider(t)
	inner := setupMemoryStorage(t)

	instrumented, err := NewInstrumentedAuditStore(inner, "memory")
	require.NoError(t, err)
	require.NoError(t, instrumented.Close())

	ctx := context.Background()
	assert.ErrorIs(t, instrumented.Ping(ctx), storage.ErrStoreClosed)
	_, err = instrumented.LimitChanges(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrStoreClosed)

	family := gatherFamily(t, reg, "throttler_audit_errors")
	require.NotNil(t, family, "error counter not exported")

	failures := map[string]float64{}
	for _, m := range family.GetMetric() {
		failures[labelValue(m, "operation")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ping": 1, "list": 1}, failures)
}

func TestInstrumentedAuditStore_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	instrumented, err := NewInstrumentedAuditStore(setupMemoryStorage(t), "memory")
	require.NoError(t, err)

	ctx := context.Background()
	change := models.NewLimitChange(10, 20, time.Minute, "ops", "", time.Now())
	require.NoError(t, instrumented.RecordLimitChange(ctx, change))
	require.NoError(t, instrumented.Close())
	assert.Error(t, instrumented.Ping(ctx))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "audit.record", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(20), attrs["limit.new"])
	assert.Equal(t, "memory", attrs["backend"])

	assert.Equal(t, "audit.ping", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
