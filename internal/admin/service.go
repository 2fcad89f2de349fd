// Package admin implements the operator surface of the rate limiter: reading
// and changing the active limit, the audit trail of those changes, decision
// statistics and read-only inspection of a key's window.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"throttler/internal/clock"
	"throttler/internal/models"
	"throttler/internal/ratelimit"
	"throttler/internal/storage"
)

// Actor identifies who asked for a change.
type Actor struct {
	Name       string
	RemoteAddr string
}

// Service handles rate limit administration business logic
type Service struct {
	policy *ratelimit.Policy
	audit  storage.AuditStore
	stats  ratelimit.StatsStore
	clock  clock.Clock
}

// NewService creates an admin service for policy. stats may be nil when
// decision statistics are disabled; a nil clock means the system clock.
func NewService(policy *ratelimit.Policy, audit storage.AuditStore, stats ratelimit.StatsStore, c clock.Clock) *Service {
	if c == nil {
		c = clock.Real{}
	}
	return &Service{
		policy: policy,
		audit:  audit,
		stats:  stats,
		clock:  c,
	}
}

// GetConfig returns the active limit and window
func (s *Service) GetConfig(ctx context.Context) *models.RateLimitConfigResponse {
	cfg := s.policy.Config()
	resp := models.NewRateLimitConfigResponse(cfg.Limit, cfg.Window)
	return &resp
}

// UpdateConfig validates req and applies the new limit. Concurrent updates are
// serialized by the policy; the last one wins. A failure to write the audit
// record is logged but does not undo the change.
func (s *Service) UpdateConfig(ctx context.Context, req *models.UpdateRateLimitRequest, actor Actor) (*models.UpdateRateLimitResponse, error) {
	limit, err := req.Validate()
	if err != nil {
		return nil, NewInvalidLimitError(err)
	}

	prev, err := s.policy.SetLimit(limit)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidLimit) {
			return nil, NewInvalidLimitError(err)
		}
		return nil, NewInternalError("failed to update rate limit", err)
	}

	now := s.clock.Now()
	current := s.policy.Config()

	change := models.NewLimitChange(prev.Limit, limit, current.Window, actor.Name, actor.RemoteAddr, now)
	if err := s.audit.RecordLimitChange(ctx, change); err != nil {
		slog.Error("Failed to record rate limit change",
			"error", err,
			"previous_limit", prev.Limit,
			"new_limit", limit)
	}

	slog.Info("Rate limit updated",
		"previous_limit", prev.Limit,
		"new_limit", limit,
		"window", current.Window,
		"actor", actor.Name,
		"remote_addr", actor.RemoteAddr)

	return &models.UpdateRateLimitResponse{
		Message:       "Rate limit successfully updated!",
		PreviousLimit: prev.Limit,
		Config:        models.NewRateLimitConfigResponse(limit, current.Window),
		UpdatedAt:     now.UTC(),
	}, nil
}

// History returns the latest req.Limit changes, newest first
func (s *Service) History(ctx context.Context, req *models.HistoryRequest) (*models.RateLimitHistoryResponse, error) {
	changes, err := s.audit.LimitChanges(ctx, req.Limit)
	if err != nil {
		return nil, NewUnavailableError("failed to read rate limit history", err)
	}

	total, err := s.audit.CountLimitChanges(ctx)
	if err != nil {
		return nil, NewUnavailableError("failed to count rate limit history", err)
	}

	result := make([]models.LimitChange, 0, len(changes))
	for _, c := range changes {
		result = append(result, *c)
	}

	return &models.RateLimitHistoryResponse{
		Changes:    result,
		TotalCount: total,
	}, nil
}

// Stats returns decision totals. Without a stats sink the totals are zero.
func (s *Service) Stats(ctx context.Context) (*models.RateLimitStatsResponse, error) {
	resp := &models.RateLimitStatsResponse{
		TrackedKeys: s.policy.Store().Len(),
		Timestamp:   s.clock.Now().UTC(),
	}

	if s.stats == nil {
		return resp, nil
	}

	totals, err := s.stats.Totals(ctx)
	if err != nil {
		return nil, NewUnavailableError("failed to read rate limit stats", err)
	}
	resp.Allowed = totals.Allowed
	resp.Denied = totals.Denied

	breakdown, ok := s.stats.(ratelimit.StatsBreakdown)
	if !ok {
		return resp, nil
	}
	routes, err := breakdown.ByRoute(ctx)
	if err != nil {
		return nil, NewUnavailableError("failed to read rate limit stats", err)
	}
	keys, err := breakdown.ByKey(ctx)
	if err != nil {
		return nil, NewUnavailableError("failed to read rate limit stats", err)
	}
	resp.Routes = decisionCounts(routes)
	resp.Keys = decisionCounts(keys)
	return resp, nil
}

func decisionCounts(in map[string]ratelimit.Counters) map[string]models.DecisionCounts {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]models.DecisionCounts, len(in))
	for name, c := range in {
		out[name] = models.DecisionCounts{Allowed: c.Allowed, Denied: c.Denied}
	}
	return out
}

// Peek reports the window of the key addr normalizes to. Nothing is recorded.
func (s *Service) Peek(ctx context.Context, addr string) *models.KeyWindowResponse {
	key := ratelimit.NormalizeKey(addr)
	d, active := s.policy.Peek(key, s.clock.Now())

	resp := &models.KeyWindowResponse{
		Key:       key,
		Active:    active,
		Count:     d.Count,
		Limit:     d.Limit,
		Remaining: d.Remaining,
	}
	if active {
		start := d.ResetAt.Add(-s.policy.Config().Window).UTC()
		reset := d.ResetAt.UTC()
		resp.WindowStart = &start
		resp.ResetAt = &reset
	}
	return resp
}

// Ping checks the audit store
func (s *Service) Ping(ctx context.Context) error {
	if err := s.audit.Ping(ctx); err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	return nil
}

