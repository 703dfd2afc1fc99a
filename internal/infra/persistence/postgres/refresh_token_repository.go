package postgres

import (
	"context"
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

// refreshTokenRepository implements the repository.RefreshTokenRepository interface using GORM.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create persists a new refresh token record.
func (repo *refreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	tokenM := fromRefreshTokenDomain(token)

	if err := repo.db.WithContext(ctx).Create(tokenM).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to create refresh token")
	}

	token.CreatedAt = tokenM.CreatedAt

	return nil
}

// FindByHash retrieves a record by its stored digest. Revoked and expired
// rows are returned too; the caller inspects their state.
func (repo *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	return repo.findByHash(repo.db.WithContext(ctx), tokenHash)
}

// FindByHashForUpdate is FindByHash under SELECT ... FOR UPDATE, so two
// concurrent rotations of the same token serialize and exactly one wins.
func (repo *refreshTokenRepository) FindByHashForUpdate(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	tx := repo.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

	return repo.findByHash(tx, tokenHash)
}

// Revoke marks a single record revoked.
func (repo *refreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) error {
	result := repo.db.WithContext(ctx).Model(&model.RefreshTokenModel{}).
		Where("id = ? AND is_revoked = ?", id, false).
		Updates(revocationColumns(revokedBy, reason, at))
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke refresh token")
	}
	if result.RowsAffected == 0 {
		return repository.ErrRefreshTokenNotFound
	}

	return nil
}

// RevokeFamily marks every unrevoked record of the family revoked. This is
// the poison pill applied when a rotated-away token is replayed.
func (repo *refreshTokenRepository) RevokeFamily(ctx context.Context, family uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Model(&model.RefreshTokenModel{}).
		Where("family = ? AND is_revoked = ?", family, false).
		Updates(revocationColumns(revokedBy, reason, at))
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke token family")
	}

	return result.RowsAffected, nil
}

// RevokeBySessionID marks every unrevoked record of the session revoked.
func (repo *refreshTokenRepository) RevokeBySessionID(ctx context.Context, sessionID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Model(&model.RefreshTokenModel{}).
		Where("session_id = ? AND is_revoked = ?", sessionID, false).
		Updates(revocationColumns(revokedBy, reason, at))
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke session tokens")
	}

	return result.RowsAffected, nil
}

// RevokeAllByUserID marks every unrevoked record of the user revoked.
func (repo *refreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Model(&model.RefreshTokenModel{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Updates(revocationColumns(revokedBy, reason, at))
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke user tokens")
	}

	return result.RowsAffected, nil
}

// FindByFamily retrieves all records of a family, oldest first.
func (repo *refreshTokenRepository) FindByFamily(ctx context.Context, family uuid.UUID) ([]*entity.RefreshToken, error) {
	var tokenMs []model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("family = ?", family).
		Order("created_at ASC").
		Find(&tokenMs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find token family")
	}

	tokens := make([]*entity.RefreshToken, 0, len(tokenMs))
	for i := range tokenMs {
		tokens = append(tokens, toRefreshTokenDomain(&tokenMs[i]))
	}

	return tokens, nil
}

// DeleteExpired removes rows that expired, or were revoked, before the cutoff.
func (repo *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at < ? OR (is_revoked = ? AND revoked_at < ?)", before, true, before).
		Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired tokens")
	}

	return result.RowsAffected, nil
}

func (repo *refreshTokenRepository) findByHash(tx *gorm.DB, tokenHash string) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel
	if err := tx.Where("token_hash = ?", tokenHash).First(&tokenM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, errors.Wrap(err, "failed to find refresh token")
	}

	return toRefreshTokenDomain(&tokenM), nil
}

func revocationColumns(revokedBy uuid.UUID, reason string, at time.Time) map[string]any {
	return map[string]any{
		"is_revoked":        true,
		"revoked_at":        at,
		"revoked_by":        revokedBy,
		"revocation_reason": reason,
	}
}

func toRefreshTokenDomain(data *model.RefreshTokenModel) *entity.RefreshToken {
	return &entity.RefreshToken{
		ID:               data.ID,
		TokenHash:        data.TokenHash,
		UserID:           data.UserID,
		SessionID:        data.SessionID,
		Family:           data.Family,
		IsRevoked:        data.IsRevoked,
		RevokedAt:        data.RevokedAt,
		RevokedBy:        data.RevokedBy,
		RevocationReason: data.RevocationReason,
		ExpiresAt:        data.ExpiresAt,
		CreatedAt:        data.CreatedAt,
	}
}

func fromRefreshTokenDomain(token *entity.RefreshToken) *model.RefreshTokenModel {
	return &model.RefreshTokenModel{
		ID:               token.ID,
		TokenHash:        token.TokenHash,
		UserID:           token.UserID,
		SessionID:        token.SessionID,
		Family:           token.Family,
		IsRevoked:        token.IsRevoked,
		RevokedAt:        token.RevokedAt,
		RevokedBy:        token.RevokedBy,
		RevocationReason: token.RevocationReason,
		ExpiresAt:        token.ExpiresAt,
		CreatedAt:        token.CreatedAt,
	}
}
