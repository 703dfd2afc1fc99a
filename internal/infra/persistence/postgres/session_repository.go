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
)

// sessionRepository implements the repository.SessionRepository interface using GORM.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create persists a new session.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	sessionM := fromSessionDomain(session)

	if err := repo.db.WithContext(ctx).Create(sessionM).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to create session")
	}

	session.ID = sessionM.ID
	session.CreatedAt = sessionM.CreatedAt

	return nil
}

// FindByID retrieves a session by primary key, whatever its state.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var sessionM model.SessionModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&sessionM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to find session by id")
	}

	return toSessionDomain(&sessionM), nil
}

// FindActiveByUserID retrieves all active, unexpired sessions for a user,
// newest first.
func (repo *sessionRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	var sessionMs []model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("created_at DESC").
		Find(&sessionMs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active sessions")
	}

	sessions := make([]*entity.Session, 0, len(sessionMs))
	for i := range sessionMs {
		sessions = append(sessions, toSessionDomain(&sessionMs[i]))
	}

	return sessions, nil
}

// Revoke marks a single session inactive with a reason. Revoking an
// already-revoked session is a no-op, not an error.
func (repo *sessionRepository) Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error {
	result := repo.db.WithContext(ctx).Model(&model.SessionModel{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"is_active":      false,
			"revoked_reason": reason,
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke session")
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// RevokeAllByUserID marks every active session of the user inactive.
func (repo *sessionRepository) RevokeAllByUserID(ctx context.Context, userID uuid.UUID, reason string) error {
	err := repo.db.WithContext(ctx).Model(&model.SessionModel{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"is_active":      false,
			"revoked_reason": reason,
		}).Error
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to revoke user sessions")
	}

	return nil
}

// UpdateLastActivity bumps the session's activity timestamp.
func (repo *sessionRepository) UpdateLastActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	err := repo.db.WithContext(ctx).Model(&model.SessionModel{}).
		Where("id = ?", sessionID).
		Update("last_activity_at", at).Error
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to update session activity")
	}

	return nil
}

// DeleteExpired removes sessions whose expiry is older than before.
func (repo *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&model.SessionModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired sessions")
	}

	return result.RowsAffected, nil
}

func toSessionDomain(data *model.SessionModel) *entity.Session {
	return &entity.Session{
		ID:             data.ID,
		UserID:         data.UserID,
		DeviceInfo:     data.DeviceInfo,
		IPAddress:      data.IPAddress,
		UserAgent:      data.UserAgent,
		IsActive:       data.IsActive,
		RevokedReason:  data.RevokedReason,
		LastActivityAt: data.LastActivityAt,
		ExpiresAt:      data.ExpiresAt,
		CreatedAt:      data.CreatedAt,
	}
}

func fromSessionDomain(session *entity.Session) *model.SessionModel {
	return &model.SessionModel{
		ID:             session.ID,
		UserID:         session.UserID,
		DeviceInfo:     session.DeviceInfo,
		IPAddress:      session.IPAddress,
		UserAgent:      session.UserAgent,
		IsActive:       session.IsActive,
		RevokedReason:  session.RevokedReason,
		LastActivityAt: session.LastActivityAt,
		ExpiresAt:      session.ExpiresAt,
		CreatedAt:      session.CreatedAt,
	}
}
