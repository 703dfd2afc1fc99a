package impl

import (
	"context"
	"log/slog"
	"time"

	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/pkg/errors"
)

// ChangePassword is the authenticated password change. Policy, reuse
// window and the credential check all run under the user row lock; on
// success every session and refresh token of the user is revoked, forcing
// re-authentication everywhere.
func (srv *authService) ChangePassword(ctx context.Context, input *usecase.ChangePasswordInput) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, input.UserID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for password change")
		}

		if !srv.hasher.Check(input.CurrentPassword, user.PasswordHash) {
			return domainerrors.ErrInvalidCredentials
		}

		if err := srv.applyNewPassword(ctx, repoFactory, user, input.NewPassword); err != nil {
			return err
		}

		if err := srv.revokeEverywhere(ctx, repoFactory, user.ID, entity.RevocationReasonPasswordChange); err != nil {
			return err
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventPasswordChanged, UserID: user.ID.String(), Email: user.Email,
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Password change failed", slog.Any("userID", input.UserID), slog.Any("error", err))

		return err
	}

	return nil
}

// applyNewPassword validates policy and the reuse window, then installs
// the new hash and records it in history. Caller holds the row lock.
func (srv *authService) applyNewPassword(
	ctx context.Context,
	repoFactory repository.RepositoryFactory,
	user *entity.User,
	newPassword string,
) error {
	if err := srv.hasher.ValidatePolicy(newPassword); err != nil {
		return err
	}

	historyRepo := repoFactory.PasswordHistoryRepo()

	// Reuse is checked against the plaintext: bcrypt hashes are salted, so
	// comparing stored hashes to each other would never match.
	recent, err := historyRepo.FindRecent(ctx, user.ID, srv.password.HistoryDepth)
	if err != nil {
		return errors.Wrap(err, "failed to load password history")
	}
	if srv.hasher.Check(newPassword, user.PasswordHash) {
		return domainerrors.ErrPasswordReused
	}
	for _, entry := range recent {
		if srv.hasher.Check(newPassword, entry.PasswordHash) {
			return domainerrors.ErrPasswordReused
		}
	}

	newHash, err := srv.hasher.Hash(newPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash new password")
	}

	user.PasswordHash = newHash
	user.PasswordChangedAt = srv.now()

	if err := repoFactory.UserRepo().Update(ctx, user); err != nil {
		return errors.Wrap(err, "failed to store new password")
	}

	entry := &entity.PasswordHistory{
		UserID:       user.ID,
		PasswordHash: newHash,
		CreatedAt:    srv.now(),
	}
	if err := historyRepo.Append(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to append password history")
	}
	if _, err := historyRepo.Prune(ctx, user.ID, srv.password.HistoryDepth); err != nil {
		return errors.Wrap(err, "failed to prune password history")
	}

	return nil
}

// ForgotPassword starts the reset flow. The response is uniform whether or
// not the email resolves to an account; the unknown-account path burns a
// bcrypt comparison so timing does not leak existence either.
func (srv *authService) ForgotPassword(ctx context.Context, input *usecase.ForgotPasswordInput) error {
	email := entity.NormalizeEmail(input.Email)

	rawToken, err := randomToken()
	if err != nil {
		return err
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				srv.hasher.Check(rawToken, dummyBcryptHash)

				return nil
			}

			return errors.Wrap(err, "failed to load user for password reset request")
		}

		// Issuing a new challenge invalidates any outstanding one.
		expiresAt := srv.now().Add(srv.token.ResetTTL)
		user.ResetTokenHash = srv.tokenService.HashToken(rawToken)
		user.ResetTokenExpiresAt = &expiresAt

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to store reset challenge")
		}

		srv.sendMail(ctx, user.Email, "Reset your password",
			"Use this token to reset your password: "+rawToken+
				"\nThe token expires in "+srv.token.ResetTTL.String()+".")

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Password reset request failed", slog.String("email", email), slog.Any("error", err))

		return err
	}

	return nil
}

// ResetPassword completes the reset flow. The challenge is single-use:
// resolution and consumption happen under one row lock, so a token can
// never reset two passwords.
func (srv *authService) ResetPassword(ctx context.Context, input *usecase.ResetPasswordInput) error {
	tokenHash := srv.tokenService.HashToken(input.Token)

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByResetTokenHashForUpdate(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrTokenInvalid.WrapMessage("reset token not recognized")
			}

			return errors.Wrap(err, "failed to resolve reset token")
		}

		if challengeExpired(user.ResetTokenExpiresAt, srv.now()) {
			user.ClearResetToken()
			if err := userRepo.Update(ctx, user); err != nil {
				return errors.Wrap(err, "failed to clear expired reset token")
			}

			return domainerrors.ErrTokenExpired.WrapMessage("reset token expired")
		}

		user.ClearResetToken()

		// A successful reset proves control of the mailbox; stale lockout
		// state would only lock the legitimate owner out again.
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil

		if err := srv.applyNewPassword(ctx, repoFactory, user, input.NewPassword); err != nil {
			return err
		}

		if err := srv.revokeEverywhere(ctx, repoFactory, user.ID, entity.RevocationReasonPasswordChange); err != nil {
			return err
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventPasswordReset, UserID: user.ID.String(), Email: user.Email,
			IPAddress: input.IPAddress,
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Password reset failed", slog.Any("error", err))

		return err
	}

	return nil
}

// RequestAccountRecovery starts recovery for accounts locked out of their
// second factor. Same uniform-response discipline as ForgotPassword.
func (srv *authService) RequestAccountRecovery(ctx context.Context, input *usecase.RequestRecoveryInput) error {
	email := entity.NormalizeEmail(input.Email)

	rawToken, err := randomToken()
	if err != nil {
		return err
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				srv.hasher.Check(rawToken, dummyBcryptHash)

				return nil
			}

			return errors.Wrap(err, "failed to load user for recovery request")
		}

		expiresAt := srv.now().Add(srv.token.RecoveryTTL)
		user.RecoveryTokenHash = srv.tokenService.HashToken(rawToken)
		user.RecoveryTokenExpiresAt = &expiresAt

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to store recovery challenge")
		}

		srv.sendMail(ctx, user.Email, "Account recovery",
			"Use this token to recover your account: "+rawToken+
				"\nRecovering the account disables two-factor authentication and signs out all devices.")

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Recovery request failed", slog.String("email", email), slog.Any("error", err))

		return err
	}

	return nil
}

// CompleteAccountRecovery consumes the recovery challenge: MFA is
// disabled, a fresh password installed, lockout cleared and every session
// revoked. The account returns to the password-only state. While MFA is
// still enabled the mailed token alone is not sufficient; a TOTP code or
// an unused recovery code is required on top, so a compromised mailbox
// cannot strip the second factor.
func (srv *authService) CompleteAccountRecovery(ctx context.Context, input *usecase.CompleteRecoveryInput) error {
	tokenHash := srv.tokenService.HashToken(input.Token)

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByRecoveryTokenHashForUpdate(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrTokenInvalid.WrapMessage("recovery token not recognized")
			}

			return errors.Wrap(err, "failed to resolve recovery token")
		}

		if challengeExpired(user.RecoveryTokenExpiresAt, srv.now()) {
			user.ClearRecoveryToken()
			if err := userRepo.Update(ctx, user); err != nil {
				return errors.Wrap(err, "failed to clear expired recovery token")
			}

			return domainerrors.ErrTokenExpired.WrapMessage("recovery token expired")
		}

		if user.MfaEnabled {
			switch {
			case input.MfaCode != "":
				if !srv.mfaService.Validate(input.MfaCode, user.MfaSecret) {
					return domainerrors.ErrMfaInvalid
				}
			case input.RecoveryCode != "":
				if !srv.consumeRecoveryCode(user, input.RecoveryCode) {
					return domainerrors.ErrMfaInvalid
				}
			default:
				return domainerrors.ErrMfaRequired
			}
		}

		user.ClearRecoveryToken()
		user.MfaEnabled = false
		user.MfaSecret = ""
		user.MfaType = entity.MfaTypeNone
		user.RecoveryCodeHashes = nil
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil

		if err := srv.applyNewPassword(ctx, repoFactory, user, input.NewPassword); err != nil {
			return err
		}

		if err := srv.revokeEverywhere(ctx, repoFactory, user.ID, entity.RevocationReasonPasswordChange); err != nil {
			return err
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventAccountRecovery, UserID: user.ID.String(), Email: user.Email,
			IPAddress: input.IPAddress,
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Account recovery failed", slog.Any("error", err))

		return err
	}

	return nil
}

func challengeExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || expiresAt.Before(now)
}
