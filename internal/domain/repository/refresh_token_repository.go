package repository

import (
	"context"
	"time"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrRefreshTokenNotFound is returned when no refresh token matches the digest.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshTokenRepository persists refresh-token records keyed by digest.
// Revoked and expired rows are still returned by lookups: the orchestrator
// needs to see a revoked row to detect replay, so filtering happens above
// this layer, not here.
type RefreshTokenRepository interface {
	// Create persists a new refresh token record.
	Create(ctx context.Context, token *entity.RefreshToken) error

	// FindByHash retrieves a record by its stored digest, whatever its
	// revocation or expiry state.
	FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// FindByHashForUpdate is FindByHash holding a row lock, so that two
	// concurrent rotations of the same token serialize and exactly one wins.
	FindByHashForUpdate(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// Revoke marks a single record revoked.
	Revoke(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) error

	// RevokeFamily marks every unrevoked record of the family revoked.
	// This is the rotation-chain poison pill for replay detection.
	RevokeFamily(ctx context.Context, family uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error)

	// RevokeBySessionID marks every unrevoked record of the session revoked.
	RevokeBySessionID(ctx context.Context, sessionID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error)

	// RevokeAllByUserID marks every unrevoked record of the user revoked.
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error)

	// FindByFamily retrieves all records of a family, oldest first.
	FindByFamily(ctx context.Context, family uuid.UUID) ([]*entity.RefreshToken, error)

	// DeleteExpired removes rows that expired or were revoked before the
	// given cutoff. Housekeeping, not correctness-critical.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
