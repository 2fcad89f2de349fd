package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewSQLiteStorage(Config{Type: "sqlite", ConnectionString: dbPath})
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorageRequiresConnectionString(t *testing.T) {
	if _, err := NewSQLiteStorage(Config{}); err == nil {
		t.Error("expected error for empty connection string")
	}
}

func TestSQLiteStorageRecordAndList(t *testing.T) {
	s := newSQLiteTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// Sub-second offsets exercise ordering of fractional timestamps
	offsets := []time.Duration{100 * time.Millisecond, 120 * time.Millisecond, 2 * time.Second}
	for i, off := range offsets {
		if err := s.RecordLimitChange(ctx, newTestChange(10+i, 11+i, base.Add(off))); err != nil {
			t.Fatalf("RecordLimitChange failed: %v", err)
		}
	}

	changes, err := s.LimitChanges(ctx, 10)
	if err != nil {
		t.Fatalf("LimitChanges failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}

	wantOrder := []int{13, 12, 11}
	for i, want := range wantOrder {
		if changes[i].NewLimit != want {
			t.Errorf("position %d: expected new limit %d, got %d", i, want, changes[i].NewLimit)
		}
	}

	first := changes[2]
	if !first.ChangedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("expected changed_at %v, got %v", base.Add(100*time.Millisecond), first.ChangedAt)
	}
	if first.Window != time.Minute || first.WindowSeconds != 60 {
		t.Errorf("expected 60s window, got %v / %d", first.Window, first.WindowSeconds)
	}
	if first.Actor != "test" || first.RemoteAddr != "127.0.0.1" {
		t.Errorf("unexpected actor/remote addr: %q %q", first.Actor, first.RemoteAddr)
	}

	limited, err := s.LimitChanges(ctx, 2)
	if err != nil {
		t.Fatalf("LimitChanges failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 changes, got %d", len(limited))
	}

	all, err := s.LimitChanges(ctx, 0)
	if err != nil {
		t.Fatalf("LimitChanges(0) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 changes, got %d", len(all))
	}

	count, err := s.CountLimitChanges(ctx)
	if err != nil {
		t.Fatalf("CountLimitChanges failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestSQLiteStorageDuplicateID(t *testing.T) {
	s := newSQLiteTestStorage(t)
	ctx := context.Background()

	change := newTestChange(1, 2, time.Now())
	if err := s.RecordLimitChange(ctx, change); err != nil {
		t.Fatalf("RecordLimitChange failed: %v", err)
	}
	if err := s.RecordLimitChange(ctx, change); err == nil {
		t.Error("expected primary key violation for duplicate ID")
	}
}

func TestSQLiteStoragePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s, err := NewSQLiteStorage(Config{ConnectionString: dbPath})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.RecordLimitChange(ctx, newTestChange(10, 25, time.Now())); err != nil {
		t.Fatalf("RecordLimitChange failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStorage(Config{ConnectionString: dbPath})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	changes, err := reopened.LimitChanges(ctx, 1)
	if err != nil {
		t.Fatalf("LimitChanges failed: %v", err)
	}
	if len(changes) != 1 || changes[0].NewLimit != 25 {
		t.Errorf("expected persisted change, got %+v", changes)
	}
}

func TestSQLiteStoragePing(t *testing.T) {
	s := newSQLiteTestStorage(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
