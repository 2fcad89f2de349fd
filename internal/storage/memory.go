package storage

import (
	"context"
	"fmt"
	"sync"

	"throttler/internal/models"
)

// DefaultMaxEntries is the history size kept by MemoryStorage.
const DefaultMaxEntries = 1000

// MemoryStorage implements AuditStore using an in-process slice.
// This provider is the default: it needs no external service, and the
// history is lost on restart together with the runtime limit it describes.
// Only the newest maxEntries changes are kept.
type MemoryStorage struct {
	mu         sync.RWMutex
	changes    []*models.LimitChange // oldest first
	maxEntries int
	closed     bool
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &MemoryStorage{
		changes:    make([]*models.LimitChange, 0, min(maxEntries, 64)),
		maxEntries: maxEntries,
	}, nil
}

// RecordLimitChange stores a copy of change
func (m *MemoryStorage) RecordLimitChange(ctx context.Context, change *models.LimitChange) error {
	if err := change.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Store a copy to prevent external modification
	changeCopy := *change
	m.changes = append(m.changes, &changeCopy)

	if over := len(m.changes) - m.maxEntries; over > 0 {
		clear(m.changes[:over])
		m.changes = m.changes[over:]
	}

	return nil
}

// LimitChanges returns up to n changes, newest first
func (m *MemoryStorage) LimitChanges(ctx context.Context, n int) ([]*models.LimitChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	if n <= 0 || n > len(m.changes) {
		n = len(m.changes)
	}

	result := make([]*models.LimitChange, 0, n)
	for i := len(m.changes) - 1; i >= 0 && len(result) < n; i-- {
		changeCopy := *m.changes[i]
		result = append(result, &changeCopy)
	}

	return result, nil
}

// CountLimitChanges returns the number of changes currently retained
func (m *MemoryStorage) CountLimitChanges(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.changes), nil
}

// Ping reports ErrStoreClosed after Close
func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close releases the history
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.changes = nil
	return nil
}
