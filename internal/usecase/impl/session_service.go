package impl

import (
	"context"
	"log/slog"
	"time"

	deliverycontext "keygate/internal/delivery/context"
	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	txManager   repository.TransactionManager
	sessionRepo repository.SessionRepository
	publisher   service.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// SessionServiceParams holds dependencies for sessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	TxManager   repository.TransactionManager
	SessionRepo repository.SessionRepository
	Publisher   service.EventPublisher
	Logger      *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	return &sessionService{
		txManager:   params.TxManager,
		sessionRepo: params.SessionRepo,
		publisher:   params.Publisher,
		logger:      params.Logger,
		now:         time.Now,
	}
}

func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// ListSessions returns the user's active sessions, newest first.
func (srv *sessionService) ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]*usecase.SessionInfo, error) {
	sessions, err := srv.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		srv.log(ctx).Error("Failed to list sessions", slog.Any("userID", userID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to list sessions")
	}

	infos := make([]*usecase.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, &usecase.SessionInfo{
			Session: session,
			Current: session.ID == currentSessionID,
		})
	}

	return infos, nil
}

// RevokeSession revokes one session owned by the user, along with the
// refresh tokens bound to it. Ownership is checked before anything is
// touched; revoking another user's session is forbidden, not not-found.
func (srv *sessionService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		session, err := repoFactory.SessionRepo().FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return domainerrors.ErrSessionNotFound
			}

			return errors.Wrap(err, "failed to load session")
		}

		if session.UserID != userID {
			return domainerrors.ErrForbidden.WrapMessage("session does not belong to user")
		}

		if _, err := repoFactory.RefreshTokenRepo().RevokeBySessionID(ctx, sessionID, userID, entity.RevocationReasonSessionRevoked, srv.now()); err != nil {
			return errors.Wrap(err, "failed to revoke session tokens")
		}

		if err := repoFactory.SessionRepo().Revoke(ctx, sessionID, entity.RevocationReasonSessionRevoked); err != nil {
			return errors.Wrap(err, "failed to revoke session")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to revoke session", slog.Any("userID", userID), slog.Any("sessionID", sessionID), slog.Any("error", err))

		return err
	}

	srv.publishRevoked(ctx, userID, sessionID.String())

	return nil
}

// RevokeAllSessions revokes every session of the user, optionally sparing
// the calling session so "log out everywhere else" keeps the caller in.
func (srv *sessionService) RevokeAllSessions(ctx context.Context, userID, exceptSessionID uuid.UUID) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		sessions, err := repoFactory.SessionRepo().FindActiveByUserID(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to list sessions for revocation")
		}

		for _, session := range sessions {
			if session.ID == exceptSessionID {
				continue
			}

			if _, err := repoFactory.RefreshTokenRepo().RevokeBySessionID(ctx, session.ID, userID, entity.RevocationReasonSessionRevoked, srv.now()); err != nil {
				return errors.Wrap(err, "failed to revoke session tokens")
			}
			if err := repoFactory.SessionRepo().Revoke(ctx, session.ID, entity.RevocationReasonSessionRevoked); err != nil {
				return errors.Wrap(err, "failed to revoke session")
			}
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to revoke all sessions", slog.Any("userID", userID), slog.Any("error", err))

		return err
	}

	srv.publishRevoked(ctx, userID, "all")

	return nil
}

func (srv *sessionService) publishRevoked(ctx context.Context, userID uuid.UUID, sessionID string) {
	event := &service.SecurityEvent{
		Type:      service.EventSessionRevoked,
		UserID:    userID.String(),
		At:        srv.now(),
		RequestID: deliverycontext.GetRequestIDFromContext(ctx),
		Metadata:  map[string]string{"session_id": sessionID},
	}
	if err := srv.publisher.PublishSecurityEvent(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish session revocation event", slog.Any("error", err))
	}
}
