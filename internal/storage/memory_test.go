package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"throttler/internal/models"
)

func newTestChange(prev, next int, at time.Time) *models.LimitChange {
	return models.NewLimitChange(prev, next, time.Minute, "test", "127.0.0.1", at)
}

func TestMemoryStorageRecordAndList(t *testing.T) {
	s, err := NewMemoryStorage(Config{})
	if err != nil {
		t.Fatalf("NewMemoryStorage failed: %v", err)
	}
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		if err := s.RecordLimitChange(ctx, newTestChange(i*10, (i+1)*10, base.Add(time.Duration(i)*time.Second))); err != nil {
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
	if changes[0].NewLimit != 40 || changes[2].NewLimit != 20 {
		t.Errorf("expected newest first, got %d..%d", changes[0].NewLimit, changes[2].NewLimit)
	}

	latest, err := s.LimitChanges(ctx, 1)
	if err != nil {
		t.Fatalf("LimitChanges failed: %v", err)
	}
	if len(latest) != 1 || latest[0].NewLimit != 40 {
		t.Errorf("expected only the latest change, got %+v", latest)
	}

	count, err := s.CountLimitChanges(ctx)
	if err != nil {
		t.Fatalf("CountLimitChanges failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	s, _ := NewMemoryStorage(Config{})
	ctx := context.Background()

	change := newTestChange(10, 20, time.Now())
	if err := s.RecordLimitChange(ctx, change); err != nil {
		t.Fatalf("RecordLimitChange failed: %v", err)
	}
	change.NewLimit = 999

	got, _ := s.LimitChanges(ctx, 1)
	if got[0].NewLimit != 20 {
		t.Errorf("stored change was modified through caller's pointer")
	}

	got[0].NewLimit = 555
	again, _ := s.LimitChanges(ctx, 1)
	if again[0].NewLimit != 20 {
		t.Errorf("stored change was modified through returned pointer")
	}
}

func TestMemoryStorageMaxEntries(t *testing.T) {
	s, _ := NewMemoryStorage(Config{MaxEntries: 2})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.RecordLimitChange(ctx, newTestChange(i, i+1, time.Now())); err != nil {
			t.Fatalf("RecordLimitChange failed: %v", err)
		}
	}

	changes, _ := s.LimitChanges(ctx, 0)
	if len(changes) != 2 {
		t.Fatalf("expected 2 retained changes, got %d", len(changes))
	}
	if changes[0].NewLimit != 6 || changes[1].NewLimit != 5 {
		t.Errorf("expected the two newest changes, got %d and %d", changes[0].NewLimit, changes[1].NewLimit)
	}
}

func TestMemoryStorageRejectsInvalidChange(t *testing.T) {
	s, _ := NewMemoryStorage(Config{})

	err := s.RecordLimitChange(context.Background(), &models.LimitChange{NewLimit: 5})
	if !errors.Is(err, ErrInvalidChange) {
		t.Errorf("expected ErrInvalidChange, got %v", err)
	}
}

func TestMemoryStorageClose(t *testing.T) {
	s, _ := NewMemoryStorage(Config{})
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Ping(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Ping, got %v", err)
	}
	if err := s.RecordLimitChange(ctx, newTestChange(1, 2, time.Now())); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from RecordLimitChange, got %v", err)
	}
	if _, err := s.LimitChanges(ctx, 1); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from LimitChanges, got %v", err)
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	s, _ := NewMemoryStorage(Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.RecordLimitChange(ctx, newTestChange(i+1, i+2, time.Now())); err != nil {
				t.Errorf("RecordLimitChange %d failed: %v", i, err)
			}
			if _, err := s.LimitChanges(ctx, 5); err != nil {
				t.Errorf("LimitChanges failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count, _ := s.CountLimitChanges(ctx)
	if count != 20 {
		t.Errorf("expected 20 changes, got %d", count)
	}
}

func ExampleMemoryStorage() {
	s, _ := NewMemoryStorage(Config{})
	defer s.Close()

	ctx := context.Background()
	_ = s.RecordLimitChange(ctx, models.NewLimitChange(10, 20, time.Minute, "ops", "", time.Now()))

	changes, _ := s.LimitChanges(ctx, 1)
	fmt.Println(changes[0].PreviousLimit, "->", changes[0].NewLimit)
	// Output: 10 -> 20
}
