package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LimitChange is one audited change of the primary rate limit.
type LimitChange struct {
	ID            string        `json:"id" db:"id"`
	PreviousLimit int           `json:"previous_limit" db:"previous_limit"`
	NewLimit      int           `json:"new_limit" db:"new_limit"`
	Window        time.Duration `json:"-" db:"-"`
	WindowSeconds int64         `json:"window_seconds" db:"window_seconds"`
	Actor         string        `json:"actor,omitempty" db:"actor"`
	RemoteAddr    string        `json:"remote_addr,omitempty" db:"remote_addr"`
	ChangedAt     time.Time     `json:"changed_at" db:"changed_at"`
}

// NewLimitChange builds a change record with a fresh ID, stamped at now.
func NewLimitChange(previous, next int, window time.Duration, actor, remoteAddr string, now time.Time) *LimitChange {
	return &LimitChange{
		ID:            uuid.NewString(),
		PreviousLimit: previous,
		NewLimit:      next,
		Window:        window,
		WindowSeconds: int64(window / time.Second),
		Actor:         strings.TrimSpace(actor),
		RemoteAddr:    remoteAddr,
		ChangedAt:     now.UTC(),
	}
}

func (c *LimitChange) Validate() error {
	if c.ID == "" {
		return errors.New("limit change ID is required")
	}
	if c.NewLimit <= 0 {
		return errors.New("new limit must be positive")
	}
	if c.ChangedAt.IsZero() {
		return errors.New("changed at is required")
	}
	return nil
}
