package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"throttler/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_changes (
	id             TEXT PRIMARY KEY,
	previous_limit INTEGER NOT NULL,
	new_limit      INTEGER NOT NULL,
	window_seconds INTEGER NOT NULL,
	actor          TEXT NOT NULL DEFAULT '',
	remote_addr    TEXT NOT NULL DEFAULT '',
	changed_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_changes_changed_at ON rate_limit_changes (changed_at);
`

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implements AuditStore on a SQLite database through the
// pure-Go modernc driver. The schema is created on open.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx := context.Background()

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// RecordLimitChange inserts change
func (ss *SQLiteStorage) RecordLimitChange(ctx context.Context, change *models.LimitChange) error {
	if err := change.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO rate_limit_changes
			(id, previous_limit, new_limit, window_seconds, actor, remote_addr, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		change.ID,
		change.PreviousLimit,
		change.NewLimit,
		change.WindowSeconds,
		change.Actor,
		change.RemoteAddr,
		change.ChangedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert limit change: %w", err)
	}
	return nil
}

// LimitChanges returns up to n changes, newest first
func (ss *SQLiteStorage) LimitChanges(ctx context.Context, n int) ([]*models.LimitChange, error) {
	if n <= 0 {
		n = -1 // SQLite treats a negative LIMIT as unlimited
	}

	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, previous_limit, new_limit, window_seconds, actor, remote_addr, changed_at
		 FROM rate_limit_changes
		 ORDER BY changed_at DESC, rowid DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query limit changes: %w", err)
	}
	defer rows.Close()

	changes := make([]*models.LimitChange, 0)
	for rows.Next() {
		var (
			c         models.LimitChange
			changedAt sqliteTime
		)
		if err := rows.Scan(&c.ID, &c.PreviousLimit, &c.NewLimit, &c.WindowSeconds, &c.Actor, &c.RemoteAddr, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit change: %w", err)
		}
		c.ChangedAt = changedAt.Time
		c.Window = time.Duration(c.WindowSeconds) * time.Second
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate limit changes: %w", err)
	}

	return changes, nil
}

// CountLimitChanges returns the number of recorded changes
func (ss *SQLiteStorage) CountLimitChanges(ctx context.Context) (int, error) {
	var count int
	if err := ss.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_changes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count limit changes: %w", err)
	}
	return count, nil
}

// Ping checks the database connection
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// sqliteTime scans a timestamp column that the driver may hand back either
// as time.Time or as text, depending on the declared column type.
type sqliteTime struct {
	time.Time
}

func (t *sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *sqliteTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}
