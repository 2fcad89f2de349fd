// Package ratelimit provides fixed-window rate limiting for HTTP requests keyed
// by source IP address. A CounterStore keeps one window per key, a Policy
// compares the window's count against a limit that can be changed at runtime,
// and a Gate turns that into a Decision the HTTP middleware uses to set the
// standard rate limit response headers and the 429 status.
package ratelimit

import "time"

// Window is one key's counter for a single fixed window. Count only reflects
// requests observed in [Start, Start+size).
type Window struct {
	Start time.Time
	Count int64
}

// CounterStore keeps per-key fixed-window counters. Implementations must be
// safe for concurrent use and must never serialize unrelated keys behind one
// lock.
type CounterStore interface {
	// RecordAndCount advances the key's window if it has expired, increments
	// its count and returns the window after the increment. Concurrent calls
	// for the same key never lose an increment or reset a window twice.
	RecordAndCount(key string, now time.Time) Window

	// Peek returns the key's current window without mutating it. ok is false
	// when the key is unseen or its window has expired.
	Peek(key string, now time.Time) (w Window, ok bool)

	// WindowSize is the length of each fixed window.
	WindowSize() time.Duration

	// Len reports how many keys are currently tracked.
	Len() int

	// Close stops background goroutines and releases resources.
	Close()
}

// Decider produces a Decision for a normalized key at a point in time.
// Policy and Composite implement it.
type Decider interface {
	Decide(key string, now time.Time) Decision
}

// Decision is the outcome of a single rate limit check, with enough quota
// metadata to populate response headers.
type Decision struct {
	Allowed    bool
	Key        string
	Limit      int           // Active limit for the window
	Count      int64         // Requests recorded in the window, including this one
	Remaining  int           // max(0, Limit-Count)
	ResetAt    time.Time     // When the current window ends
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

func newDecision(key string, limit int, w Window, size time.Duration, now time.Time) Decision {
	remaining := int64(limit) - w.Count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   w.Count <= int64(limit),
		Key:       key,
		Limit:     limit,
		Count:     w.Count,
		Remaining: int(remaining),
		ResetAt:   w.Start.Add(size),
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
