package ratelimit

import "time"

// Composite evaluates several policies against the same key, for example a
// per-minute limit stacked with per-hour and per-day limits. A request is
// allowed only if every policy allows it. Each policy records the request
// regardless of the others' outcome.
type Composite struct {
	primary *Policy
	extra   []*Policy
}

// NewComposite combines a primary policy with additional ones. The primary
// policy is the one the admin surface reads and mutates.
func NewComposite(primary *Policy, extra ...*Policy) *Composite {
	return &Composite{primary: primary, extra: extra}
}

// Primary returns the mutable policy.
func (c *Composite) Primary() *Policy {
	return c.primary
}

// Policies returns the primary policy followed by the additional ones.
func (c *Composite) Policies() []*Policy {
	return append([]*Policy{c.primary}, c.extra...)
}

// Decide reports the most restrictive outcome. When rejected, it is the
// rejecting policy whose window resets last; otherwise the policy with the
// least remaining quota.
func (c *Composite) Decide(key string, now time.Time) Decision {
	result := c.primary.Decide(key, now)
	for _, p := range c.extra {
		d := p.Decide(key, now)
		if moreRestrictive(d, result) {
			result = d
		}
	}
	return result
}

func moreRestrictive(a, b Decision) bool {
	if a.Allowed != b.Allowed {
		return !a.Allowed
	}
	if !a.Allowed {
		return a.ResetAt.After(b.ResetAt)
	}
	return a.Remaining < b.Remaining
}
