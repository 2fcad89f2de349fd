// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate limit, storage, etc.)
// - Defaults that work out of the box with no external services
// - Validation that catches misconfigurations at startup, not at request time
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage type constants for the rate limit change audit log
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Stats sink type constants
const (
	StatsTypeMemory = "memory"
	StatsTypeRedis  = "redis"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - RateLimit: Window size, initial limit and stacked limits
// - Security: Admin endpoint protection
// - Storage: Audit log backend for limit changes
// - Stats: Decision statistics sink
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Stats         StatsConfig         `yaml:"stats" json:"stats"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// RateLimitConfig controls the per-IP fixed-window limiter.
//
// Limit is only the initial value; it can be changed at runtime through the
// admin endpoint and is not persisted. AdditionalLimits stack extra windows
// on the same key using "N per unit" notation, e.g. "50 per hour".
type RateLimitConfig struct {
	Limit             int           `yaml:"limit" json:"limit"`
	Window            time.Duration `yaml:"window" json:"window"`
	AdditionalLimits  []string      `yaml:"additional_limits" json:"additional_limits"`
	Shards            int           `yaml:"shards" json:"shards"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	Retention         time.Duration `yaml:"retention" json:"retention"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

// SecurityConfig protects the admin surface. An empty AdminToken leaves the
// admin endpoints open, matching the behaviour of a single trusted operator.
type SecurityConfig struct {
	AdminToken             string  `yaml:"admin_token" json:"-"`
	AdminRequestsPerSecond float64 `yaml:"admin_requests_per_second" json:"admin_requests_per_second"`
	AdminBurst             int     `yaml:"admin_burst" json:"admin_burst"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type StatsConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Type      string        `yaml:"type" json:"type"`
	TrackKeys bool          `yaml:"track_keys" json:"track_keys"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	Redis     RedisConfig   `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Environment string        `yaml:"environment" json:"environment"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with defaults that need no
// external services.
//
// Default Values Rationale:
// - 10 requests per minute per IP with no stacked limits
// - Proxy headers ignored until an operator says a proxy is in front
// - In-memory audit log and stats
// - JSON logs on stdout, Prometheus metrics on :9090
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:            10,
			Window:           time.Minute,
			Shards:           32,
			CleanupInterval:  time.Minute,
			Retention:        5 * time.Minute,
		},
		Security: SecurityConfig{
			AdminRequestsPerSecond: 5,
			AdminBurst:             10,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Stats: StatsConfig{
			Enabled: true,
			Type:    StatsTypeMemory,
			TTL:     24 * time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "ratelimit:stats",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "throttler",
			Environment: "development",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if rc.Limit <= 0 {
		return errors.New("limit must be a positive integer")
	}

	if rc.Window <= 0 {
		return errors.New("window must be positive")
	}

	if rc.Shards <= 0 {
		return errors.New("shards must be positive")
	}

	if rc.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	if rc.Retention < 0 {
		return errors.New("retention cannot be negative")
	}

	if _, err := rc.ParsedAdditionalLimits(); err != nil {
		return err
	}

	return nil
}

// ParsedAdditionalLimits parses AdditionalLimits in order.
func (rc *RateLimitConfig) ParsedAdditionalLimits() ([]RateLimitSpec, error) {
	specs := make([]RateLimitSpec, 0, len(rc.AdditionalLimits))
	for _, raw := range rc.AdditionalLimits {
		spec, err := ParseRateLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid additional limit: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.AdminRequestsPerSecond < 0 {
		return errors.New("admin requests per second cannot be negative")
	}

	if sec.AdminRequestsPerSecond > 0 && sec.AdminBurst <= 0 {
		return errors.New("admin burst must be positive when admin throttling is enabled")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Type != StorageTypeMemory && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	if stc.Database.MaxOpenConns < 0 {
		return errors.New("max open connections cannot be negative")
	}

	return nil
}

func (sc *StatsConfig) Validate() error {
	if !sc.Enabled {
		return nil
	}

	if !slices.Contains([]string{StatsTypeMemory, StatsTypeRedis}, sc.Type) {
		return fmt.Errorf("invalid stats type: %s", sc.Type)
	}

	if sc.TTL < 0 {
		return errors.New("stats TTL cannot be negative")
	}

	if sc.Type == StatsTypeRedis && sc.Redis.Addr == "" {
		return errors.New("Redis address is required when stats type is redis")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
