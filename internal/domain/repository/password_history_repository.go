package repository

import (
	"context"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
)

// PasswordHistoryRepository is the append-only ledger of prior password
// hashes per user, consulted to block password reuse.
type PasswordHistoryRepository interface {
	// Append records a password hash for the user.
	Append(ctx context.Context, entry *entity.PasswordHistory) error

	// FindRecent returns the most recent limit entries for the user,
	// newest first.
	FindRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*entity.PasswordHistory, error)

	// Prune deletes entries beyond the most recent keep entries.
	Prune(ctx context.Context, userID uuid.UUID, keep int) (int64, error)
}
