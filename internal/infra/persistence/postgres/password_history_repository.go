package postgres

import (
	"context"

	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// passwordHistoryRepository implements the repository.PasswordHistoryRepository interface using GORM.
type passwordHistoryRepository struct {
	db *gorm.DB
}

// NewPasswordHistoryRepository is the constructor for passwordHistoryRepository.
func NewPasswordHistoryRepository(db *gorm.DB) repository.PasswordHistoryRepository {
	return &passwordHistoryRepository{db: db}
}

// Append records a password hash for the user.
func (repo *passwordHistoryRepository) Append(ctx context.Context, entry *entity.PasswordHistory) error {
	entryM := &model.PasswordHistoryModel{
		ID:           entry.ID,
		UserID:       entry.UserID,
		PasswordHash: entry.PasswordHash,
		CreatedAt:    entry.CreatedAt,
	}

	if err := repo.db.WithContext(ctx).Create(entryM).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to append password history")
	}

	entry.ID = entryM.ID
	entry.CreatedAt = entryM.CreatedAt

	return nil
}

// FindRecent returns the most recent limit entries for the user, newest first.
func (repo *passwordHistoryRepository) FindRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*entity.PasswordHistory, error) {
	var entryMs []model.PasswordHistoryModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entryMs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find password history")
	}

	entries := make([]*entity.PasswordHistory, 0, len(entryMs))
	for i := range entryMs {
		entries = append(entries, &entity.PasswordHistory{
			ID:           entryMs[i].ID,
			UserID:       entryMs[i].UserID,
			PasswordHash: entryMs[i].PasswordHash,
			CreatedAt:    entryMs[i].CreatedAt,
		})
	}

	return entries, nil
}

// Prune deletes entries beyond the most recent keep entries.
func (repo *passwordHistoryRepository) Prune(ctx context.Context, userID uuid.UUID, keep int) (int64, error) {
	subquery := repo.db.Model(&model.PasswordHistoryModel{}).
		Select("id").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(keep)

	result := repo.db.WithContext(ctx).
		Where("user_id = ? AND id NOT IN (?)", userID, subquery).
		Delete(&model.PasswordHistoryModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to prune password history")
	}

	return result.RowsAffected, nil
}
