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

// SetupMfa generates a pending TOTP enrollment. The secret and recovery
// code digests are stored immediately, but MfaEnabled stays false until
// ActivateMfa proves the authenticator produces valid codes. Re-running
// setup before activation replaces the pending enrollment.
func (srv *authService) SetupMfa(ctx context.Context, userID uuid.UUID) (*usecase.MfaSetupOutput, error) {
	var output *usecase.MfaSetupOutput

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for mfa setup")
		}

		if user.MfaEnabled {
			return domainerrors.ErrMfaAlreadyEnabled
		}

		enrollment, err := srv.mfaService.GenerateEnrollment(user.Email)
		if err != nil {
			return errors.Wrap(err, "failed to generate mfa enrollment")
		}

		hashes := make([]string, 0, len(enrollment.RecoveryCodes))
		for _, code := range enrollment.RecoveryCodes {
			hashes = append(hashes, srv.mfaService.HashRecoveryCode(code))
		}

		user.MfaSecret = enrollment.Secret
		user.MfaType = entity.MfaTypeTOTP
		user.RecoveryCodeHashes = hashes

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to store pending enrollment")
		}

		output = &usecase.MfaSetupOutput{
			Secret:        enrollment.Secret,
			OtpauthURL:    enrollment.OtpauthURL,
			QRCodePNG:     enrollment.QRCodePNG,
			RecoveryCodes: enrollment.RecoveryCodes,
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("MFA setup failed", slog.Any("userID", userID), slog.Any("error", err))

		return nil, err
	}

	return output, nil
}

// ActivateMfa confirms the pending enrollment with a live code from the
// authenticator and flips the account to MFA-required.
func (srv *authService) ActivateMfa(ctx context.Context, userID uuid.UUID, code string) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for mfa activation")
		}

		if user.MfaEnabled {
			return domainerrors.ErrMfaAlreadyEnabled
		}
		if user.MfaSecret == "" {
			return domainerrors.ErrMfaNotEnabled.WrapMessage("no pending enrollment")
		}

		if !srv.mfaService.Validate(code, user.MfaSecret) {
			return domainerrors.ErrMfaInvalid
		}

		user.MfaEnabled = true

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to activate mfa")
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventMfaEnabled, UserID: user.ID.String(), Email: user.Email,
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("MFA activation failed", slog.Any("userID", userID), slog.Any("error", err))

		return err
	}

	return nil
}

// DisableMfa turns the second factor off. It demands the password AND a
// valid code (TOTP or recovery), so neither a stolen password nor a
// stolen unlocked device suffices alone.
func (srv *authService) DisableMfa(ctx context.Context, input *usecase.DisableMfaInput) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, input.UserID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for mfa disable")
		}

		if !user.MfaEnabled {
			return domainerrors.ErrMfaNotEnabled
		}

		if !srv.hasher.Check(input.Password, user.PasswordHash) {
			return domainerrors.ErrInvalidCredentials
		}

		switch {
		case input.Code != "":
			if !srv.mfaService.Validate(input.Code, user.MfaSecret) {
				return domainerrors.ErrMfaInvalid
			}
		case input.RecoveryCode != "":
			if !srv.consumeRecoveryCode(user, input.RecoveryCode) {
				return domainerrors.ErrMfaInvalid
			}
		default:
			return domainerrors.ErrMfaRequired
		}

		user.MfaEnabled = false
		user.MfaSecret = ""
		user.MfaType = entity.MfaTypeNone
		user.RecoveryCodeHashes = nil

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to disable mfa")
		}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventMfaDisabled, UserID: user.ID.String(), Email: user.Email,
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("MFA disable failed", slog.Any("userID", input.UserID), slog.Any("error", err))

		return err
	}

	return nil
}
