package ratelimit

import (
	"fmt"
	"time"

	"throttler/internal/clock"
	"throttler/internal/models"
)

// Stack is the limiter described by a RateLimitConfig: a primary policy plus
// one policy per additional limit, each over its own MemoryStore.
type Stack struct {
	*Composite
	stores []*MemoryStore
}

// NewStack builds the stores and policies for cfg. A nil clock means the
// system clock. Close releases the stores' janitors.
func NewStack(cfg models.RateLimitConfig, c clock.Clock) (*Stack, error) {
	specs, err := cfg.ParsedAdditionalLimits()
	if err != nil {
		return nil, err
	}

	s := &Stack{}
	newStore := func(window time.Duration) *MemoryStore {
		store := NewMemoryStore(window,
			WithShards(cfg.Shards),
			WithRetention(cfg.Retention),
			WithCleanupInterval(cfg.CleanupInterval),
			WithClock(c),
		)
		s.stores = append(s.stores, store)
		return store
	}

	primary, err := NewPolicy("primary", newStore(cfg.Window), cfg.Limit)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("primary limit: %w", err)
	}

	extra := make([]*Policy, 0, len(specs))
	for _, spec := range specs {
		p, err := NewPolicy(spec.String(), newStore(spec.Period), spec.Count)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("additional limit %q: %w", spec, err)
		}
		extra = append(extra, p)
	}

	s.Composite = NewComposite(primary, extra...)
	return s, nil
}

// Close stops every store's janitor. It is safe to call more than once.
func (s *Stack) Close() {
	for _, store := range s.stores {
		store.Close()
	}
}
