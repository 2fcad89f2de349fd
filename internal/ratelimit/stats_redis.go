package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAllowed = "allowed"
	fieldDenied  = "denied"
)

// RedisStatsStore aggregates decision counts in Redis hashes: a cumulative
// total, per-minute buckets and per-route counters, plus optional per-key
// counters. Bucket and key hashes expire after the configured TTL; the total
// does not.
type RedisStatsStore struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

// RedisStatsOption configures a RedisStatsStore.
type RedisStatsOption func(*RedisStatsStore)

// WithStatsPrefix sets the key prefix (default "ratelimit:stats").
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the expiry of bucket and key hashes.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsTrackKeys enables per-key hashes.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

var (
	_ StatsStore     = (*RedisStatsStore)(nil)
	_ StatsBreakdown = (*RedisStatsStore)(nil)
)

// NewRedisStatsStore creates a stats store on an existing client.
func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the hashes touched by ev in a single pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := fieldDenied
	if ev.Allowed {
		field = fieldAllowed
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys && ev.Key != "" {
		keyKey := s.prefix + ":key:" + ev.Key
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

// Totals reads the cumulative counters.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read rate limit stats: %w", err)
	}

	return countersFrom(vals)
}

func countersFrom(vals map[string]string) (Counters, error) {
	var c Counters
	var err error
	if c.Allowed, err = parseCount(vals[fieldAllowed]); err != nil {
		return Counters{}, err
	}
	if c.Denied, err = parseCount(vals[fieldDenied]); err != nil {
		return Counters{}, err
	}
	return c, nil
}

// ByRoute reads the per-route counters.
func (s *RedisStatsStore) ByRoute(ctx context.Context) (map[string]Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":route").Result()
	if err != nil {
		return nil, fmt.Errorf("read route stats: %w", err)
	}

	out := make(map[string]Counters)
	for f, v := range vals {
		i := strings.LastIndex(f, ":")
		if i < 0 {
			continue
		}
		n, err := parseCount(v)
		if err != nil {
			return nil, err
		}
		route, c := f[:i], out[f[:i]]
		switch f[i+1:] {
		case fieldAllowed:
			c.Allowed = n
		case fieldDenied:
			c.Denied = n
		default:
			continue
		}
		out[route] = c
	}
	return out, nil
}

// ByKey scans the per-key hashes. It is empty unless key tracking is on.
func (s *RedisStatsStore) ByKey(ctx context.Context) (map[string]Counters, error) {
	keyPrefix := s.prefix + ":key:"
	out := make(map[string]Counters)

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		vals, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("read key stats: %w", err)
		}
		c, err := countersFrom(vals)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(iter.Val(), keyPrefix)] = c
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan key stats: %w", err)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *RedisStatsStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStatsStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStatsStore) totalKey() string {
	return s.prefix + ":total"
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stats counter %q: %w", v, err)
	}
	return n, nil
}
