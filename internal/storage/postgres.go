package storage

import (
	"context"
	"fmt"
	"time"

	"throttler/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_changes (
	id             TEXT PRIMARY KEY,
	previous_limit INTEGER NOT NULL,
	new_limit      INTEGER NOT NULL,
	window_seconds BIGINT NOT NULL,
	actor          TEXT NOT NULL DEFAULT '',
	remote_addr    TEXT NOT NULL DEFAULT '',
	changed_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_changes_changed_at ON rate_limit_changes (changed_at DESC);
`

// PostgresStorage implements AuditStore using PostgreSQL through a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures the schema exists.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx := context.Background()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// RecordLimitChange inserts change.
func (ps *PostgresStorage) RecordLimitChange(ctx context.Context, change *models.LimitChange) error {
	if err := change.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO rate_limit_changes
			(id, previous_limit, new_limit, window_seconds, actor, remote_addr, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ID,
		change.PreviousLimit,
		change.NewLimit,
		change.WindowSeconds,
		change.Actor,
		change.RemoteAddr,
		change.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert limit change: %w", err)
	}
	return nil
}

// LimitChanges returns up to n changes, newest first. n <= 0 returns all.
func (ps *PostgresStorage) LimitChanges(ctx context.Context, n int) ([]*models.LimitChange, error) {
	var limit *int
	if n > 0 {
		limit = &n
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT id, previous_limit, new_limit, window_seconds, actor, remote_addr, changed_at
		 FROM rate_limit_changes
		 ORDER BY changed_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query limit changes: %w", err)
	}

	changes, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.LimitChange])
	if err != nil {
		return nil, fmt.Errorf("failed to collect limit changes: %w", err)
	}

	for _, c := range changes {
		c.Window = time.Duration(c.WindowSeconds) * time.Second
		c.ChangedAt = c.ChangedAt.UTC()
	}

	return changes, nil
}

// CountLimitChanges returns the number of recorded changes.
func (ps *PostgresStorage) CountLimitChanges(ctx context.Context) (int, error) {
	var count int
	if err := ps.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rate_limit_changes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count limit changes: %w", err)
	}
	return count, nil
}

// Ping checks the pool can reach the server.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
