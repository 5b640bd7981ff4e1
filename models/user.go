package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the public shape of a chat user as it appears inside realtime
// event payloads. Field names mirror what the REST tier serves so the
// web client can reuse its decoders.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	IsOnline     bool       `json:"isOnline"`
	LastOnlineAt *time.Time `json:"lastOnlineAt"`
	AvatarURL    *string    `json:"avatarUrl"`
}
