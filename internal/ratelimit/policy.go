package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidLimit is returned when a limit is not a positive integer.
var ErrInvalidLimit = errors.New("invalid rate limit")

// Config is an immutable snapshot of a policy's settings.
type Config struct {
	Limit  int
	Window time.Duration
}

// Policy applies a mutable limit to a CounterStore. Every call to Decide
// reads the limit from an atomic snapshot, so a concurrent SetLimit is seen
// either entirely or not at all.
type Policy struct {
	name  string
	store CounterStore

	mu     sync.Mutex // serializes writers
	config atomic.Pointer[Config]
}

// NewPolicy creates a policy enforcing limit requests per store window.
func NewPolicy(name string, store CounterStore, limit int) (*Policy, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	p := &Policy{name: name, store: store}
	p.config.Store(&Config{Limit: limit, Window: store.WindowSize()})
	return p, nil
}

// Name identifies the policy in logs and metrics.
func (p *Policy) Name() string {
	return p.name
}

// Store returns the counter store backing the policy.
func (p *Policy) Store() CounterStore {
	return p.store
}

// Decide records the request for key and compares the resulting count with
// the active limit. Rejected requests are recorded too, so the window never
// under-counts.
func (p *Policy) Decide(key string, now time.Time) Decision {
	w := p.store.RecordAndCount(key, now)
	cfg := p.config.Load()
	return newDecision(key, cfg.Limit, w, cfg.Window, now)
}

// Peek reports the key's current window together with the decision metadata
// it would carry, without recording anything.
func (p *Policy) Peek(key string, now time.Time) (Decision, bool) {
	w, ok := p.store.Peek(key, now)
	cfg := p.config.Load()
	if !ok {
		return Decision{Allowed: true, Key: key, Limit: cfg.Limit, Remaining: cfg.Limit}, false
	}
	return newDecision(key, cfg.Limit, w, cfg.Window, now), true
}

// SetLimit replaces the active limit and returns the previous configuration.
// An invalid limit leaves the policy untouched.
func (p *Policy) SetLimit(limit int) (Config, error) {
	if err := validateLimit(limit); err != nil {
		return p.Config(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.config.Load()
	p.config.Store(&Config{Limit: limit, Window: prev.Window})
	return *prev, nil
}

// Limit returns the active limit.
func (p *Policy) Limit() int {
	return p.config.Load().Limit
}

// Config returns the active configuration.
func (p *Policy) Config() Config {
	return *p.config.Load()
}

func validateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: must be a positive integer, got %d", ErrInvalidLimit, limit)
	}
	return nil
}
