package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"throttler/internal/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, window time.Duration, opts ...MemoryOption) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(window, append([]MemoryOption{WithCleanupInterval(0)}, opts...)...)
	t.Cleanup(store.Close)
	return store
}

func TestNewMemoryStore(t *testing.T) {
	store := newTestStore(t, time.Minute)

	assert.Equal(t, time.Minute, store.WindowSize())
	assert.Len(t, store.shards, defaultShards)
	assert.Zero(t, store.Len())
}

func TestNewMemoryStore_Options(t *testing.T) {
	store := newTestStore(t, time.Second, WithShards(4), WithRetention(time.Hour))

	assert.Len(t, store.shards, 4)
	assert.Equal(t, time.Hour, store.retention)

	// Invalid values keep the defaults
	store = newTestStore(t, time.Second, WithShards(0), WithRetention(-time.Second))
	assert.Len(t, store.shards, defaultShards)
	assert.Equal(t, defaultRetention, store.retention)
}

func TestNewMemoryStore_PanicsOnInvalidWindow(t *testing.T) {
	assert.Panics(t, func() { NewMemoryStore(0) })
}

func TestMemoryStore_RecordAndCount(t *testing.T) {
	store := newTestStore(t, time.Minute)

	w := store.RecordAndCount("10.0.0.1", epoch)
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, epoch, w.Start)

	w = store.RecordAndCount("10.0.0.1", epoch.Add(30*time.Second))
	assert.Equal(t, int64(2), w.Count)
	assert.Equal(t, epoch, w.Start)
}

func TestMemoryStore_WindowResets(t *testing.T) {
	store := newTestStore(t, time.Minute)

	for i := 0; i < 5; i++ {
		store.RecordAndCount("10.0.0.1", epoch)
	}

	// Exactly at Start+size the old window no longer applies
	w := store.RecordAndCount("10.0.0.1", epoch.Add(time.Minute))
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, epoch.Add(time.Minute), w.Start)

	// Long idle gaps do not accumulate either
	w = store.RecordAndCount("10.0.0.1", epoch.Add(10*time.Hour))
	assert.Equal(t, int64(1), w.Count)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t, time.Minute)

	for i := 0; i < 3; i++ {
		store.RecordAndCount("key1", epoch)
	}
	w := store.RecordAndCount("key2", epoch)
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_Peek(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, ok := store.Peek("10.0.0.1", epoch)
	assert.False(t, ok)

	store.RecordAndCount("10.0.0.1", epoch)
	store.RecordAndCount("10.0.0.1", epoch)

	w, ok := store.Peek("10.0.0.1", epoch.Add(59*time.Second))
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Count)

	// Peeking does not record
	w, _ = store.Peek("10.0.0.1", epoch.Add(59*time.Second))
	assert.Equal(t, int64(2), w.Count)

	w, ok = store.Peek("10.0.0.1", epoch.Add(time.Minute))
	assert.False(t, ok)
	assert.Zero(t, w.Count)
}

func TestMemoryStore_ConcurrentSameKey(t *testing.T) {
	store := newTestStore(t, time.Minute)

	const goroutines, perGoroutine = 50, 40
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				store.RecordAndCount("shared", epoch)
			}
		}()
	}
	wg.Wait()

	w, ok := store.Peek("shared", epoch)
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*perGoroutine), w.Count)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t, time.Minute, WithShards(4))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", id%5)
			for j := 0; j < 20; j++ {
				store.RecordAndCount(key, epoch)
				store.Peek(key, epoch)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			store.EvictExpired(epoch)
		}
	}()
	wg.Wait()

	total := int64(0)
	for i := 0; i < 5; i++ {
		w, ok := store.Peek(fmt.Sprintf("client-%d", i), epoch)
		require.True(t, ok)
		total += w.Count
	}
	assert.Equal(t, int64(1000), total)
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	store := newTestStore(t, time.Minute, WithRetention(30*time.Second))

	store.RecordAndCount("old", epoch)
	store.RecordAndCount("new", epoch.Add(time.Minute))

	// "old" ended at +1m, retained until +1m30s
	assert.Zero(t, store.EvictExpired(epoch.Add(89*time.Second)))
	assert.Equal(t, 2, store.Len())

	assert.Equal(t, 1, store.EvictExpired(epoch.Add(90*time.Second)))
	assert.Equal(t, 1, store.Len())

	_, ok := store.Peek("new", epoch.Add(90*time.Second))
	assert.True(t, ok)

	// An evicted key starts over
	w := store.RecordAndCount("old", epoch.Add(90*time.Second))
	assert.Equal(t, int64(1), w.Count)
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(time.Minute, WithCleanupInterval(10*time.Millisecond))
	store.Close()
	// Should not panic on double close
	store.Close()
}

func TestMemoryStore_Janitor(t *testing.T) {
	c := clock.NewManual(epoch)
	store := NewMemoryStore(time.Second,
		WithCleanupInterval(10*time.Millisecond),
		WithRetention(0),
		WithClock(c),
	)
	defer store.Close()

	store.RecordAndCount("ephemeral-key", c.Now())
	require.Equal(t, 1, store.Len())

	c.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond, "key should be evicted after its window and retention")
}
