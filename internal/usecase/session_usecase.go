package usecase

import (
	"context"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionInfo is one active session as shown to its owner.
type SessionInfo struct {
	Session *entity.Session
	Current bool
}

// SessionUsecase defines session management operations: listing a user's
// active sessions and revoking them individually or wholesale. Revoking a
// session always revokes the refresh tokens bound to it.
type SessionUsecase interface {
	// ListSessions returns the user's active sessions, newest first.
	// currentSessionID marks which entry belongs to the calling client;
	// uuid.Nil is fine when unknown.
	ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]*SessionInfo, error)

	// RevokeSession revokes one session owned by the user.
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error

	// RevokeAllSessions revokes every session of the user ("log out
	// everywhere"), optionally sparing the calling session.
	RevokeAllSessions(ctx context.Context, userID, exceptSessionID uuid.UUID) error
}
