package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session represents one continuous login on one device or browser. It is
// distinct from any individual token: over its lifetime a session owns a
// chain of refresh tokens (one family), of which at most one is live.
type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DeviceInfo string // Advisory browser/os/device description.
	IPAddress  string
	UserAgent  string

	IsActive       bool
	RevokedReason  string
	LastActivityAt time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Expired reports whether the session has passed its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}
