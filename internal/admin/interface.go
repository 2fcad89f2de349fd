package admin

import (
	"context"

	"throttler/internal/models"
)

// ServiceInterface defines the interface for admin service operations
type ServiceInterface interface {
	// GetConfig returns the active primary limit and its window
	GetConfig(ctx context.Context) *models.RateLimitConfigResponse

	// UpdateConfig validates the request and replaces the primary limit
	UpdateConfig(ctx context.Context, req *models.UpdateRateLimitRequest, actor Actor) (*models.UpdateRateLimitResponse, error)

	// History returns audited limit changes, newest first
	History(ctx context.Context, req *models.HistoryRequest) (*models.RateLimitHistoryResponse, error)

	// Stats returns aggregated allow/deny totals
	Stats(ctx context.Context) (*models.RateLimitStatsResponse, error)

	// Peek returns a key's current window without counting a request
	Peek(ctx context.Context, addr string) *models.KeyWindowResponse

	// Ping checks the audit store
	Ping(ctx context.Context) error
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
