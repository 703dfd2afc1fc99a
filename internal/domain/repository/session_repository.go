package repository

import (
	"context"
	"time"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned when no session matches the lookup.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository tracks logical login sessions independent of any
// particular token. Sessions are never reused after revocation; a new
// login always creates a new session row.
type SessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *entity.Session) error

	// FindByID retrieves a session by primary key.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// FindActiveByUserID retrieves all active, unexpired sessions for a
	// user, newest first. Powers "list my devices".
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error)

	// Revoke marks a single session inactive with a reason.
	Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error

	// RevokeAllByUserID marks every active session of the user inactive.
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID, reason string) error

	// UpdateLastActivity bumps the session's activity timestamp. Callers
	// treat failures as non-fatal.
	UpdateLastActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error

	// DeleteExpired removes sessions whose expiry is older than before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
