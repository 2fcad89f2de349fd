package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

func getPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func newPostgresTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := getPostgresDSN(t)
	s, err := NewPostgresStorage(Config{ConnectionString: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("failed to create postgres storage: %v", err)
	}
	if _, err := s.pool.Exec(context.Background(), "TRUNCATE rate_limit_changes"); err != nil {
		t.Fatalf("failed to reset table: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStorageConnectionError(t *testing.T) {
	_, err := NewPostgresStorage(Config{ConnectionString: ""})
	if err == nil {
		t.Error("expected error for empty connection string")
	}
}

func TestPostgresStorageInvalidDSN(t *testing.T) {
	_, err := NewPostgresStorage(Config{ConnectionString: "postgres://invalid:5432/nonexistent?connect_timeout=1"})
	if err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestPostgresStorageRecordAndList(t *testing.T) {
	s := newPostgresTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := s.RecordLimitChange(ctx, newTestChange(10+i, 11+i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordLimitChange failed: %v", err)
		}
	}

	changes, err := s.LimitChanges(ctx, 2)
	if err != nil {
		t.Fatalf("LimitChanges failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].NewLimit != 13 || changes[1].NewLimit != 12 {
		t.Errorf("expected newest first, got %d, %d", changes[0].NewLimit, changes[1].NewLimit)
	}
	if changes[0].Window != time.Minute {
		t.Errorf("expected window 1m, got %v", changes[0].Window)
	}
	if !changes[0].ChangedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected changed_at %v", changes[0].ChangedAt)
	}

	all, err := s.LimitChanges(ctx, 0)
	if err != nil {
		t.Fatalf("LimitChanges(0) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 changes, got %d", len(all))
	}

	count, err := s.CountLimitChanges(ctx)
	if err != nil {
		t.Fatalf("CountLimitChanges failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
