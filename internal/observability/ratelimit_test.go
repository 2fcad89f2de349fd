package observability

import (
	"testing"
	"time"

	"throttler/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedDecider(t *testing.T) {
	reg := setupTestProvider(t)

	store := ratelimit.NewMemoryStore(time.Minute, ratelimit.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	policy, err := ratelimit.NewPolicy("primary", store, 2)
	require.NoError(t, err)

	decider, err := NewInstrumentedDecider(policy, policy)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, decider.Decide("10.0.0.1", now).Allowed)
	assert.True(t, decider.Decide("10.0.0.1", now).Allowed)
	assert.False(t, decider.Decide("10.0.0.1", now).Allowed)
	assert.True(t, decider.Decide("10.0.0.2", now).Allowed)

	decisions := gatherFamily(t, reg, "ratelimit_decisions")
	require.NotNil(t, decisions, "decision counter not exported")

	byOutcome := map[string]float64{}
	for _, m := range decisions.GetMetric() {
		byOutcome[labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, byOutcome["allowed"])
	assert.Equal(t, 1.0, byOutcome["denied"])

	keys := gatherFamily(t, reg, "ratelimit_keys")
	require.NotNil(t, keys, "keys gauge not exported")
	require.Len(t, keys.GetMetric(), 1)
	assert.Equal(t, 2.0, keys.GetMetric()[0].GetGauge().GetValue())

	limit := gatherFamily(t, reg, "ratelimit_limit")
	require.NotNil(t, limit, "limit gauge not exported")
	assert.Equal(t, 2.0, limit.GetMetric()[0].GetGauge().GetValue())

	_, err = policy.SetLimit(7)
	require.NoError(t, err)
	limit = gatherFamily(t, reg, "ratelimit_limit")
	assert.Equal(t, 7.0, limit.GetMetric()[0].GetGauge().GetValue())

	assert.NoError(t, decider.Close())
}
