package storage

import (
	"context"
	"time"

	"throttler/internal/models"
)

// AuditStore defines the interface for persisting the history of rate limit
// changes. It is write-mostly: the limiter never reads it back, so a restart
// always begins from the configured limit.
type AuditStore interface {
	// RecordLimitChange appends a change to the history
	RecordLimitChange(ctx context.Context, change *models.LimitChange) error

	// LimitChanges returns up to n changes, newest first
	LimitChanges(ctx context.Context, n int) ([]*models.LimitChange, error)

	// CountLimitChanges returns the number of recorded changes
	CountLimitChanges(ctx context.Context) (int, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxOpenConns caps the database connection pool; zero keeps the driver default
	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`

	// ConnMaxLifetime recycles pooled connections; zero keeps the driver default
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`

	// MaxEntries bounds the in-memory history; zero means DefaultMaxEntries
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}
