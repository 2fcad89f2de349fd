package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"throttler/internal/clock"
)

const (
	defaultShards          = 32
	defaultRetention       = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// entry holds one key's window. Its mutex makes reset-then-increment a single
// critical section for that key only.
type entry struct {
	mu     sync.Mutex
	window Window
}

// shard owns a slice of the key space. Counter updates hold the read lock, so
// keys in the same shard still proceed in parallel; only inserts and eviction
// take the write lock.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// MemoryStore is the in-process CounterStore. Keys are spread over shards by
// xxhash and every entry carries its own lock. A background goroutine evicts
// entries whose window ended more than the retention period ago.
type MemoryStore struct {
	window          time.Duration
	retention       time.Duration
	cleanupInterval time.Duration
	clock           clock.Clock
	shards          []*shard

	closeMu sync.Mutex
	done    chan struct{}
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithShards sets the number of lock shards.
func WithShards(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.shards = make([]*shard, n)
		}
	}
}

// WithRetention sets how long an expired window is kept before eviction.
func WithRetention(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// WithCleanupInterval sets how often the janitor runs. Zero disables it.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.cleanupInterval = d }
}

// WithClock sets the clock the janitor uses to decide staleness.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *MemoryStore) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMemoryStore creates a store with the given fixed window size and starts
// its eviction goroutine unless the cleanup interval is zero.
func NewMemoryStore(window time.Duration, opts ...MemoryOption) *MemoryStore {
	if window <= 0 {
		panic("ratelimit: window size must be positive")
	}

	m := &MemoryStore{
		window:          window,
		retention:       defaultRetention,
		cleanupInterval: defaultCleanupInterval,
		clock:           clock.Real{},
		shards:          make([]*shard, defaultShards),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	if m.cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

// WindowSize returns the fixed window length.
func (m *MemoryStore) WindowSize() time.Duration {
	return m.window
}

func (m *MemoryStore) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// RecordAndCount counts one request for key at now.
func (m *MemoryStore) RecordAndCount(key string, now time.Time) Window {
	s := m.shardFor(key)
	for {
		s.mu.RLock()
		if e, ok := s.entries[key]; ok {
			w := e.record(now, m.window)
			s.mu.RUnlock()
			return w
		}
		s.mu.RUnlock()

		s.mu.Lock()
		if _, ok := s.entries[key]; !ok {
			s.entries[key] = &entry{}
		}
		s.mu.Unlock()
	}
}

func (e *entry) record(now time.Time, size time.Duration) Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	if expired(e.window, now, size) {
		e.window = Window{Start: now}
	}
	e.window.Count++
	if e.window.Count <= 0 {
		panic("ratelimit: window counter overflow")
	}
	return e.window
}

// Peek returns the key's live window without touching it.
func (m *MemoryStore) Peek(key string, now time.Time) (Window, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Window{}, false
	}

	e.mu.Lock()
	w := e.window
	e.mu.Unlock()

	if expired(w, now, m.window) {
		return Window{}, false
	}
	return w, true
}

// Len returns the number of tracked keys, expired or not.
func (m *MemoryStore) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// EvictExpired removes entries whose window ended more than the retention
// period before now and returns how many were removed.
func (m *MemoryStore) EvictExpired(now time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		// The write lock excludes every RecordAndCount and Peek on this
		// shard, so no entry lock is held here.
		for key, e := range s.entries {
			if !now.Before(e.window.Start.Add(m.window + m.retention)) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Close stops the background cleanup goroutine.
func (m *MemoryStore) Close() {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

// cleanup periodically evicts stale entries.
func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.EvictExpired(m.clock.Now())
		}
	}
}

// expired reports whether w no longer covers now. A zero window is expired.
func expired(w Window, now time.Time, size time.Duration) bool {
	return w.Start.IsZero() || !now.Before(w.Start.Add(size))
}
