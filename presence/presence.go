// Package presence persists the online/offline state the hub computes
// from its presence sets, so the REST tier can serve last-seen info.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the persisted presence record for a single user.
type Status struct {
	UserID       uuid.UUID  `json:"userId"`
	IsOnline     bool       `json:"isOnline"`
	LastOnlineAt *time.Time `json:"lastOnlineAt"`
}

// Repository stores presence transitions. Implementations must be safe
// for use from a single goroutine at a time; the hub is the only caller.
type Repository interface {
	// SetOnline marks the user online.
	SetOnline(ctx context.Context, userID uuid.UUID) error
	// SetOffline marks the user offline and records when they were last seen.
	SetOffline(ctx context.Context, userID uuid.UUID, lastSeenAt time.Time) error
	// Get retrieves the persisted status, or nil when none was recorded.
	Get(ctx context.Context, userID uuid.UUID) (*Status, error)
}
