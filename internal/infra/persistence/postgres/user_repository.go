// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"
	"strings"
	"time"

	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements the repository.UserRepository interface using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository is the constructor for userRepository.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create persists a new user. The store's unique index on email is the
// final authority on uniqueness; a violation surfaces as ErrEmailTaken.
func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrEmailTaken
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create user")
	}

	user.ID = userM.ID
	user.CreatedAt = userM.CreatedAt
	user.UpdatedAt = userM.UpdatedAt

	return nil
}

// FindByID retrieves a single user by their unique ID.
func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.findOne(ctx, repo.db.WithContext(ctx), "id = ?", id)
}

// FindByEmail retrieves a single user by their normalized email address.
func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.findOne(ctx, repo.db.WithContext(ctx), "email = ?", entity.NormalizeEmail(email))
}

// FindByEmailForUpdate is FindByEmail under SELECT ... FOR UPDATE. The row
// lock is held until the surrounding transaction commits, serializing
// concurrent login attempts against the same account.
func (repo *userRepository) FindByEmailForUpdate(ctx context.Context, email string) (*entity.User, error) {
	tx := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

	return repo.findOne(ctx, tx, "email = ?", entity.NormalizeEmail(email))
}

// FindByIDForUpdate is FindByID under SELECT ... FOR UPDATE.
func (repo *userRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	tx := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

	return repo.findOne(ctx, tx, "id = ?", id)
}

// FindByResetTokenHashForUpdate resolves a password-reset challenge digest
// under a row lock so validation and consumption are one atomic step.
func (repo *userRepository) FindByResetTokenHashForUpdate(ctx context.Context, tokenHash string) (*entity.User, error) {
	tx := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

	return repo.findOne(ctx, tx, "reset_token_hash = ? AND reset_token_hash <> ''", tokenHash)
}

// FindByRecoveryTokenHashForUpdate is the account-recovery counterpart.
func (repo *userRepository) FindByRecoveryTokenHashForUpdate(ctx context.Context, tokenHash string) (*entity.User, error) {
	tx := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

	return repo.findOne(ctx, tx, "recovery_token_hash = ? AND recovery_token_hash <> ''", tokenHash)
}

// FindByVerificationToken resolves an email-verification challenge digest.
func (repo *userRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (*entity.User, error) {
	return repo.findOne(ctx, repo.db.WithContext(ctx), "verification_token = ? AND verification_token <> ''", tokenHash)
}

// Update persists all mutable fields of the user row. Zero values are
// written too, so cleared challenge tokens and reset counters stick.
func (repo *userRepository) Update(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	result := repo.db.WithContext(ctx).Model(&model.UserModel{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(userM)
	if result.Error != nil {
		if isUniqueConstraintViolation(result.Error) {
			return repository.ErrEmailTaken
		}

		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to update user")
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}

	return nil
}

// ClearExpiredChallenges wipes reset and recovery challenges whose expiry
// passed before the cutoff. Expired challenges are rejected on use anyway;
// this only keeps dead digests from sitting on user rows.
func (repo *userRepository) ClearExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	reset := repo.db.WithContext(ctx).Model(&model.UserModel{}).
		Where("reset_token_hash <> '' AND (reset_token_expires_at IS NULL OR reset_token_expires_at < ?)", before).
		Updates(map[string]any{"reset_token_hash": "", "reset_token_expires_at": nil})
	if reset.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(reset.Error, "failed to clear expired reset challenges")
	}

	recovery := repo.db.WithContext(ctx).Model(&model.UserModel{}).
		Where("recovery_token_hash <> '' AND (recovery_token_expires_at IS NULL OR recovery_token_expires_at < ?)", before).
		Updates(map[string]any{"recovery_token_hash": "", "recovery_token_expires_at": nil})
	if recovery.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(recovery.Error, "failed to clear expired recovery challenges")
	}

	return reset.RowsAffected + recovery.RowsAffected, nil
}

func (repo *userRepository) findOne(_ context.Context, tx *gorm.DB, query string, args ...any) (*entity.User, error) {
	var userM model.UserModel
	if err := tx.Where(query, args...).First(&userM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, errors.Wrap(err, "failed to find user")
	}

	return toUserDomain(&userM), nil
}

// toUserDomain maps the persistence model back to a pure domain entity.
func toUserDomain(data *model.UserModel) *entity.User {
	return &entity.User{
		ID:                     data.ID,
		Email:                  data.Email,
		Name:                   data.Name,
		PasswordHash:           data.PasswordHash,
		Role:                   data.Role,
		FailedLoginAttempts:    data.FailedLoginAttempts,
		LockedUntil:            data.LockedUntil,
		EmailVerified:          data.EmailVerified,
		VerificationToken:      data.VerificationToken,
		MfaEnabled:             data.MfaEnabled,
		MfaSecret:              data.MfaSecret,
		MfaType:                entity.MfaType(data.MfaType),
		RecoveryCodeHashes:     splitLines(data.RecoveryCodeHashes),
		ResetTokenHash:         data.ResetTokenHash,
		ResetTokenExpiresAt:    data.ResetTokenExpiresAt,
		RecoveryTokenHash:      data.RecoveryTokenHash,
		RecoveryTokenExpiresAt: data.RecoveryTokenExpiresAt,
		TenantIDs:              splitLines(data.TenantIDs),
		PasswordChangedAt:      data.PasswordChangedAt,
		CreatedAt:              data.CreatedAt,
		UpdatedAt:              data.UpdatedAt,
	}
}

// fromUserDomain maps a pure domain entity to a GORM persistence model.
func fromUserDomain(user *entity.User) *model.UserModel {
	return &model.UserModel{
		ID:                     user.ID,
		Email:                  entity.NormalizeEmail(user.Email),
		Name:                   user.Name,
		PasswordHash:           user.PasswordHash,
		Role:                   user.Role,
		FailedLoginAttempts:    user.FailedLoginAttempts,
		LockedUntil:            user.LockedUntil,
		EmailVerified:          user.EmailVerified,
		VerificationToken:      user.VerificationToken,
		MfaEnabled:             user.MfaEnabled,
		MfaSecret:              user.MfaSecret,
		MfaType:                string(user.MfaType),
		RecoveryCodeHashes:     joinLines(user.RecoveryCodeHashes),
		ResetTokenHash:         user.ResetTokenHash,
		ResetTokenExpiresAt:    user.ResetTokenExpiresAt,
		RecoveryTokenHash:      user.RecoveryTokenHash,
		RecoveryTokenExpiresAt: user.RecoveryTokenExpiresAt,
		TenantIDs:              joinLines(user.TenantIDs),
		PasswordChangedAt:      user.PasswordChangedAt,
		CreatedAt:              user.CreatedAt,
		UpdatedAt:              user.UpdatedAt,
	}
}

func splitLines(joined string) []string {
	if joined == "" {
		return nil
	}

	return strings.Split(joined, "\n")
}

func joinLines(values []string) string {
	return strings.Join(values, "\n")
}
