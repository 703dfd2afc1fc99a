package repository

import (
	"context"
	"time"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for user persistence.
var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when the unique email constraint is violated.
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository defines persistence operations over credential-store
// entries. Lock state, MFA state and challenge tokens all live on the user
// row; every mutation of that shared state goes through Update under a
// ForUpdate read so concurrent logins serialize per account.
type UserRepository interface {
	// Create persists a new user. Email uniqueness is enforced by the store.
	Create(ctx context.Context, user *entity.User) error

	// FindByID retrieves a user by primary key.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByEmail retrieves a user by normalized email.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// FindByEmailForUpdate retrieves a user by email holding a row lock for
	// the duration of the surrounding transaction. Login-attempt counting
	// must use this so two concurrent attempts cannot both read a stale
	// failure counter.
	FindByEmailForUpdate(ctx context.Context, email string) (*entity.User, error)

	// FindByIDForUpdate is FindByID with a row lock.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByResetTokenHashForUpdate resolves the single-use reset challenge,
	// holding a row lock so validation and consumption are one atomic step.
	FindByResetTokenHashForUpdate(ctx context.Context, tokenHash string) (*entity.User, error)

	// FindByRecoveryTokenHashForUpdate is the recovery-flow counterpart.
	FindByRecoveryTokenHashForUpdate(ctx context.Context, tokenHash string) (*entity.User, error)

	// FindByVerificationToken resolves an email-verification challenge.
	FindByVerificationToken(ctx context.Context, tokenHash string) (*entity.User, error)

	// Update persists all mutable fields of the user row.
	Update(ctx context.Context, user *entity.User) error

	// ClearExpiredChallenges wipes reset and recovery challenges whose
	// expiry passed before the cutoff. Returns how many were cleared.
	ClearExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}
