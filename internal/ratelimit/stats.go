package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StatsEvent describes one rate limit decision for reporting.
type StatsEvent struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// Counters aggregates decisions.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsStore receives decision events. Recording is best effort: callers log
// failures and never let them affect a decision. Stats are reporting only and
// are never consulted when deciding.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
	Totals(ctx context.Context) (Counters, error)
}

// StatsBreakdown is implemented by stores that also count per route
// ("METHOD /path") and per key. ByKey is empty unless key tracking is on.
type StatsBreakdown interface {
	ByRoute(ctx context.Context) (map[string]Counters, error)
	ByKey(ctx context.Context) (map[string]Counters, error)
}

type counterPair struct {
	allowed atomic.Int64
	denied  atomic.Int64
}

func (c *counterPair) add(allowed bool) {
	if allowed {
		c.allowed.Add(1)
	} else {
		c.denied.Add(1)
	}
}

func (c *counterPair) load() Counters {
	return Counters{Allowed: c.allowed.Load(), Denied: c.denied.Load()}
}

// MemoryStatsStore keeps counters in process memory. Recording is lock-free
// once a route or key has been seen. Nothing expires, so per-key tracking
// should stay off for long-running processes.
type MemoryStatsStore struct {
	total   counterPair
	byRoute sync.Map // string -> *counterPair
	byKey   sync.Map // string -> *counterPair

	trackKeys bool
}

var (
	_ StatsStore     = (*MemoryStatsStore)(nil)
	_ StatsBreakdown = (*MemoryStatsStore)(nil)
)

// MemoryStatsOption configures a MemoryStatsStore.
type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackKeys enables per-key counters.
func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// NewMemoryStatsStore creates an empty in-memory stats store.
func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record adds ev to the totals.
func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	s.total.add(ev.Allowed)
	counterFor(&s.byRoute, ev.Method+" "+ev.Path).add(ev.Allowed)
	if s.trackKeys {
		counterFor(&s.byKey, ev.Key).add(ev.Allowed)
	}
	return nil
}

// Totals returns the overall counters.
func (s *MemoryStatsStore) Totals(_ context.Context) (Counters, error) {
	return s.total.load(), nil
}

// ByRoute returns a snapshot of the per-route counters.
func (s *MemoryStatsStore) ByRoute(_ context.Context) (map[string]Counters, error) {
	return snapshot(&s.byRoute), nil
}

// ByKey returns a snapshot of the per-key counters.
func (s *MemoryStatsStore) ByKey(_ context.Context) (map[string]Counters, error) {
	return snapshot(&s.byKey), nil
}

func counterFor(m *sync.Map, name string) *counterPair {
	if c, ok := m.Load(name); ok {
		return c.(*counterPair)
	}
	c, _ := m.LoadOrStore(name, new(counterPair))
	return c.(*counterPair)
}

func snapshot(m *sync.Map) map[string]Counters {
	out := make(map[string]Counters)
	m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*counterPair).load()
		return true
	})
	return out
}
