package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Test server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.Server.IdleTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Test rate limit defaults
	assert.Equal(t, 10, config.RateLimit.Limit)
	assert.Equal(t, time.Minute, config.RateLimit.Window)
	assert.Empty(t, config.RateLimit.AdditionalLimits)
	assert.Equal(t, 32, config.RateLimit.Shards)
	assert.Equal(t, time.Minute, config.RateLimit.CleanupInterval)
	assert.Equal(t, 5*time.Minute, config.RateLimit.Retention)
	assert.False(t, config.RateLimit.TrustProxyHeaders)

	// Test security defaults
	assert.Empty(t, config.Security.AdminToken)
	assert.Equal(t, 5.0, config.Security.AdminRequestsPerSecond)
	assert.Equal(t, 10, config.Security.AdminBurst)

	// Test storage and stats defaults
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.True(t, config.Stats.Enabled)
	assert.Equal(t, StatsTypeMemory, config.Stats.Type)
	assert.Equal(t, "ratelimit:stats", config.Stats.Redis.Prefix)

	// Test logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)

	// Test metrics defaults
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, 9090, config.Metrics.Port)

	// Test observability defaults
	assert.Equal(t, "throttler", config.Observability.ServiceName)
	assert.Equal(t, "development", config.Observability.Environment)
	assert.False(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "stdout", config.Observability.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Observability.Tracing.SampleRate)

	require.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid port",
			mutate:   func(c *Config) { c.Server.Port = 0 },
			errorMsg: "invalid server config",
		},
		{
			name:     "TLS without cert",
			mutate:   func(c *Config) { c.Server.TLSEnabled = true },
			errorMsg: "TLS cert file is required",
		},
		{
			name:     "zero limit",
			mutate:   func(c *Config) { c.RateLimit.Limit = 0 },
			errorMsg: "limit must be a positive integer",
		},
		{
			name:     "negative window",
			mutate:   func(c *Config) { c.RateLimit.Window = -time.Second },
			errorMsg: "window must be positive",
		},
		{
			name:     "zero shards",
			mutate:   func(c *Config) { c.RateLimit.Shards = 0 },
			errorMsg: "shards must be positive",
		},
		{
			name:     "bad additional limit",
			mutate:   func(c *Config) { c.RateLimit.AdditionalLimits = []string{"lots per week"} },
			errorMsg: "invalid additional limit",
		},
		{
			name:   "no additional limits",
			mutate: func(c *Config) { c.RateLimit.AdditionalLimits = nil },
		},
		{
			name: "admin throttle without burst",
			mutate: func(c *Config) {
				c.Security.AdminRequestsPerSecond = 1
				c.Security.AdminBurst = 0
			},
			errorMsg: "admin burst must be positive",
		},
		{
			name:     "unknown storage type",
			mutate:   func(c *Config) { c.Storage.Type = "json" },
			errorMsg: "invalid storage type",
		},
		{
			name:     "postgres without DSN",
			mutate:   func(c *Config) { c.Storage.Type = StorageTypePostgres },
			errorMsg: "database DSN is required",
		},
		{
			name: "sqlite with DSN",
			mutate: func(c *Config) {
				c.Storage.Type = StorageTypeSQLite
				c.Storage.Database.DSN = "file:audit.db"
			},
		},
		{
			name:     "unknown stats type",
			mutate:   func(c *Config) { c.Stats.Type = "kafka" },
			errorMsg: "invalid stats type",
		},
		{
			name: "disabled stats skips validation",
			mutate: func(c *Config) {
				c.Stats.Enabled = false
				c.Stats.Type = "kafka"
			},
		},
		{
			name: "redis stats without address",
			mutate: func(c *Config) {
				c.Stats.Type = StatsTypeRedis
				c.Stats.Redis.Addr = ""
			},
			errorMsg: "Redis address is required",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "invalid log level",
		},
		{
			name:     "file output without path",
			mutate:   func(c *Config) { c.Logging.Output = "file" },
			errorMsg: "file path is required",
		},
		{
			name:     "metrics port out of range",
			mutate:   func(c *Config) { c.Metrics.Port = 70000 },
			errorMsg: "metrics port must be between",
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.Exporter = "otlp"
			},
			errorMsg: "OTLP endpoint is required",
		},
		{
			name: "sample rate out of range",
			mutate: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.SampleRate = 1.5
			},
			errorMsg: "sample rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRateLimitConfig_ParsedAdditionalLimits(t *testing.T) {
	rc := NewDefaultConfig().RateLimit
	rc.AdditionalLimits = []string{"200 per day", "50 per hour"}

	specs, err := rc.ParsedAdditionalLimits()
	require.NoError(t, err)
	assert.Equal(t, []RateLimitSpec{
		{Count: 200, Period: 24 * time.Hour},
		{Count: 50, Period: time.Hour},
	}, specs)
}
