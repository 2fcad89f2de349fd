package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimitChange(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	change := NewLimitChange(10, 20, time.Minute, " admin ", "10.0.0.1", now)

	_, err := uuid.Parse(change.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, change.PreviousLimit)
	assert.Equal(t, 20, change.NewLimit)
	assert.Equal(t, int64(60), change.WindowSeconds)
	assert.Equal(t, "admin", change.Actor)
	assert.Equal(t, time.UTC, change.ChangedAt.Location())
	assert.True(t, change.ChangedAt.Equal(now))
	assert.NoError(t, change.Validate())
}

func TestLimitChange_Validate(t *testing.T) {
	tests := []struct {
		name   string
		change LimitChange
	}{
		{name: "missing ID", change: LimitChange{NewLimit: 1, ChangedAt: time.Now()}},
		{name: "zero limit", change: LimitChange{ID: "x", ChangedAt: time.Now()}},
		{name: "missing time", change: LimitChange{ID: "x", NewLimit: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.change.Validate())
		})
	}
}
