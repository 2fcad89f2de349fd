package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidRateLimit = errors.New("invalid rate limit")

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// RateLimitSpec is a parsed "N per [M] unit" expression.
type RateLimitSpec struct {
	Count  int
	Period time.Duration
}

func (s RateLimitSpec) String() string {
	return fmt.Sprintf("%d per %s", s.Count, s.Period)
}

// ParseRateLimit parses expressions such as "10/minute", "50 per hour",
// "200 per day" or "5 per 2 hours". Units are second, minute, hour and day,
// optionally plural.
func ParseRateLimit(raw string) (RateLimitSpec, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return RateLimitSpec{}, fmt.Errorf("%w: empty expression", ErrInvalidRateLimit)
	}

	var countPart, periodPart string
	if before, after, ok := strings.Cut(s, "/"); ok {
		countPart, periodPart = before, after
	} else if before, after, ok := strings.Cut(s, " per "); ok {
		countPart, periodPart = before, after
	} else {
		return RateLimitSpec{}, fmt.Errorf("%w: %q has no 'per' or '/' separator", ErrInvalidRateLimit, raw)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || count <= 0 {
		return RateLimitSpec{}, fmt.Errorf("%w: count in %q must be a positive integer", ErrInvalidRateLimit, raw)
	}

	fields := strings.Fields(periodPart)
	multiplier := 1
	switch len(fields) {
	case 1:
	case 2:
		multiplier, err = strconv.Atoi(fields[0])
		if err != nil || multiplier <= 0 {
			return RateLimitSpec{}, fmt.Errorf("%w: multiplier in %q must be a positive integer", ErrInvalidRateLimit, raw)
		}
		fields = fields[1:]
	default:
		return RateLimitSpec{}, fmt.Errorf("%w: cannot parse period in %q", ErrInvalidRateLimit, raw)
	}

	unit, ok := rateUnits[strings.TrimSuffix(fields[0], "s")]
	if !ok {
		return RateLimitSpec{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidRateLimit, fields[0])
	}

	return RateLimitSpec{Count: count, Period: time.Duration(multiplier) * unit}, nil
}
