package ratelimit

import (
	"net"
	"net/netip"
	"strings"
	"time"

	"throttler/internal/clock"
)

// UnknownKey is used when no caller address is available.
const UnknownKey = "unknown"

// Gate is the per-request entry point: it normalizes the caller's address into
// a key and asks the decider for a Decision.
type Gate struct {
	decider Decider
	clock   clock.Clock
}

// NewGate creates a gate over decider. A nil clock means the system clock.
func NewGate(decider Decider, c clock.Clock) *Gate {
	if c == nil {
		c = clock.Real{}
	}
	return &Gate{decider: decider, clock: c}
}

// Handle decides whether the caller at addr may proceed. The counter
// increment done by the decider is the only side effect.
func (g *Gate) Handle(addr string) Decision {
	return g.decider.Decide(NormalizeKey(addr), g.clock.Now())
}

// Now reads the gate's clock.
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// NormalizeKey turns a source address into a rate limit key. Ports, IPv6
// brackets and zones are stripped, IPv4-mapped IPv6 addresses are unmapped and
// IPv6 is rendered in canonical lowercase form so that equivalent spellings
// share one counter. Values that are not IP addresses are lowercased as is.
func NormalizeKey(addr string) string {
	s := strings.TrimSpace(addr)
	if s == "" {
		return UnknownKey
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")

	if ip, err := netip.ParseAddr(s); err == nil {
		return ip.Unmap().WithZone("").String()
	}
	if s == "" {
		return UnknownKey
	}
	return strings.ToLower(s)
}
