package entity

import (
	"time"

	"github.com/google/uuid"
)

// Revocation reasons recorded on refresh tokens and published in audit
// events. RevocationReasonReuse is the only one treated as an attack
// signal: it poisons the whole token family.
const (
	RevocationReasonRotation       = "token rotation"
	RevocationReasonLogout         = "logout"
	RevocationReasonSessionRevoked = "session revoked"
	RevocationReasonPasswordChange = "password changed"
	RevocationReasonReuse          = "reuse detected"
)

// RefreshToken is the persisted record of one refresh credential. The raw
// bearer value is never stored; TokenHash is its one-way digest and the
// single authority for revocation status.
type RefreshToken struct {
	ID        uuid.UUID
	TokenHash string
	UserID    uuid.UUID
	SessionID uuid.UUID

	// Family links the chain of tokens produced by successive rotations
	// of one login. Set once at session creation, propagated unchanged,
	// and revoked as a unit when reuse of a rotated-away token is seen.
	Family uuid.UUID

	IsRevoked        bool
	RevokedAt        *time.Time
	RevokedBy        uuid.UUID
	RevocationReason string

	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token has passed its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// RevokedWithin reports whether the token was revoked less than window ago.
// Used to distinguish a concurrent legitimate retry from token replay.
func (t *RefreshToken) RevokedWithin(now time.Time, window time.Duration) bool {
	return t.RevokedAt != nil && now.Sub(*t.RevokedAt) <= window
}
