package impl

import (
	"context"
	"log/slog"

	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued in the same family. The row lock on the token record
// guarantees that two concurrent presentations of the same token
// serialize; exactly one rotates, the other finds the record revoked.
//
// A revoked record seen within the rotation grace window is treated as a
// lost-response retry and rejected quietly. Outside the window it is
// treated as replay of a stolen token: the whole family and its session
// are revoked before the error returns.
func (srv *authService) Refresh(ctx context.Context, input *usecase.RefreshInput) (*usecase.RefreshOutput, error) {
	// Signature and expiry first; garbage never reaches the store.
	claims, err := srv.tokenService.VerifyRefreshToken(input.RefreshToken)
	if err != nil {
		return nil, err
	}

	tokenHash := srv.tokenService.HashToken(input.RefreshToken)

	var output *usecase.RefreshOutput

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		refreshRepo := repoFactory.RefreshTokenRepo()

		record, err := refreshRepo.FindByHashForUpdate(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotFound) {
				// Valid signature but no record: signed with our key yet
				// never persisted, or already swept. Nothing to rotate.
				return domainerrors.ErrTokenInvalid.WrapMessage("refresh token not recognized")
			}

			return errors.Wrap(err, "failed to load refresh token")
		}

		now := srv.now()

		if record.IsRevoked {
			if record.RevokedWithin(now, srv.token.RotationGraceWindow) {
				return domainerrors.ErrTokenRevoked.WrapMessage("token already rotated")
			}

			return srv.poisonFamily(ctx, repoFactory, record, input.IPAddress)
		}

		if record.Expired(now) {
			return domainerrors.ErrTokenExpired.WrapMessage("refresh token expired")
		}

		session, err := repoFactory.SessionRepo().FindByID(ctx, record.SessionID)
		if err != nil {
			return errors.Wrap(err, "failed to load session for rotation")
		}
		if !session.IsActive || session.Expired(now) {
			return domainerrors.ErrTokenRevoked.WrapMessage("session no longer active")
		}

		user, err := repoFactory.UserRepo().FindByID(ctx, record.UserID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for rotation")
		}
		if user.Locked(now) {
			return domainerrors.ErrAccountLocked
		}

		if err := refreshRepo.Revoke(ctx, record.ID, user.ID, entity.RevocationReasonRotation, now); err != nil {
			return errors.Wrap(err, "failed to revoke rotated token")
		}

		tenants, err := srv.tenantResolver.TenantsFor(ctx, user.ID)
		if err != nil {
			srv.log(ctx).Warn("Tenant resolution failed during rotation", slog.Any("userID", user.ID), slog.Any("error", err))
		}
		user.TenantIDs = tenants

		pair, err := srv.issueTokenPair(ctx, repoFactory, user, record.SessionID, record.Family)
		if err != nil {
			return err
		}

		if err := repoFactory.SessionRepo().UpdateLastActivity(ctx, record.SessionID, now); err != nil {
			srv.log(ctx).Warn("Failed to bump session activity", slog.Any("sessionID", record.SessionID), slog.Any("error", err))
		}

		output = &usecase.RefreshOutput{Tokens: pair, SessionID: record.SessionID}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Refresh failed", slog.String("subject", claims.Subject), slog.Any("error", err))

		return nil, err
	}

	return output, nil
}

// poisonFamily handles replay of a rotated-away token: every live token in
// the family is revoked along with the session, so the thief and the
// legitimate client are both forced back through a full login.
func (srv *authService) poisonFamily(
	ctx context.Context,
	repoFactory repository.RepositoryFactory,
	record *entity.RefreshToken,
	ipAddress string,
) error {
	now := srv.now()

	revoked, err := repoFactory.RefreshTokenRepo().RevokeFamily(ctx, record.Family, record.UserID, entity.RevocationReasonReuse, now)
	if err != nil {
		return errors.Wrap(err, "failed to revoke token family")
	}

	if err := repoFactory.SessionRepo().Revoke(ctx, record.SessionID, entity.RevocationReasonReuse); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return errors.Wrap(err, "failed to revoke session after replay")
	}

	srv.log(ctx).Warn("Refresh token replay detected",
		slog.Any("userID", record.UserID),
		slog.Any("family", record.Family),
		slog.Int64("tokensRevoked", revoked),
	)
	srv.publish(ctx, &service.SecurityEvent{
		Type: service.EventReplayDetected, UserID: record.UserID.String(),
		IPAddress: ipAddress,
		Metadata: map[string]string{
			"family":     record.Family.String(),
			"session_id": record.SessionID.String(),
		},
	})

	return domainerrors.ErrReplayDetected.WrapMessage("rotated token presented again")
}

// Logout ends the session bound to the presented refresh token. An
// unparseable token still succeeds: logout is idempotent and a client
// holding garbage has nothing left to revoke.
func (srv *authService) Logout(ctx context.Context, input *usecase.LogoutInput) error {
	if _, err := srv.tokenService.VerifyRefreshToken(input.RefreshToken); err != nil {
		srv.log(ctx).Debug("Logout with unverifiable token", slog.Any("error", err))

		return nil
	}

	tokenHash := srv.tokenService.HashToken(input.RefreshToken)

	return srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		record, err := repoFactory.RefreshTokenRepo().FindByHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotFound) {
				return nil
			}

			return errors.Wrap(err, "failed to load refresh token for logout")
		}

		now := srv.now()

		if _, err := repoFactory.RefreshTokenRepo().RevokeBySessionID(ctx, record.SessionID, record.UserID, entity.RevocationReasonLogout, now); err != nil {
			return errors.Wrap(err, "failed to revoke session tokens on logout")
		}
		if err := repoFactory.SessionRepo().Revoke(ctx, record.SessionID, entity.RevocationReasonLogout); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return errors.Wrap(err, "failed to revoke session on logout")
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventSessionRevoked, UserID: record.UserID.String(),
			Metadata: map[string]string{"session_id": record.SessionID.String(), "reason": entity.RevocationReasonLogout},
		})

		return nil
	})
}

// revokeEverywhere revokes all sessions and refresh tokens of a user,
// optionally sparing one session. Used after password change, reset and
// account recovery.
func (srv *authService) revokeEverywhere(
	ctx context.Context,
	repoFactory repository.RepositoryFactory,
	userID uuid.UUID,
	reason string,
) error {
	now := srv.now()

	if _, err := repoFactory.RefreshTokenRepo().RevokeAllByUserID(ctx, userID, userID, reason, now); err != nil {
		return errors.Wrap(err, "failed to revoke user refresh tokens")
	}
	if err := repoFactory.SessionRepo().RevokeAllByUserID(ctx, userID, reason); err != nil {
		return errors.Wrap(err, "failed to revoke user sessions")
	}

	return nil
}
