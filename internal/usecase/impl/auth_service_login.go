package impl

import (
	"context"
	"log/slog"
	"slices"

	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Login authenticates a password and either issues tokens or, when the
// account has a second factor, returns an intermediate challenge.
//
// The whole attempt runs inside one transaction holding the user row lock,
// so concurrent attempts against the same account serialize and the
// failure counter never loses an increment. The lock check happens before
// the password comparison: a locked account rejects even the correct
// password without revealing whether it was correct.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	email := entity.NormalizeEmail(input.Email)
	srv.log(ctx).Debug("Starting login", slog.String("email", email))

	var output *usecase.LoginOutput

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				// Unknown account burns the same bcrypt cost as a wrong
				// password so the two are indistinguishable by timing.
				srv.hasher.Check(input.Password, dummyBcryptHash)

				return domainerrors.ErrInvalidCredentials
			}

			return errors.Wrap(err, "failed to load user for login")
		}

		now := srv.now()

		if user.Locked(now) {
			srv.publish(ctx, &service.SecurityEvent{
				Type: service.EventLoginFailed, UserID: user.ID.String(), Email: email,
				IPAddress: input.IPAddress,
				Metadata:  map[string]string{"reason": "account locked"},
			})

			return domainerrors.ErrAccountLocked
		}

		if !srv.hasher.Check(input.Password, user.PasswordHash) {
			return srv.recordFailedAttempt(ctx, userRepo, user, input.IPAddress)
		}

		// Success clears the failure counter and any expired lock.
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to reset failure counter")
		}

		if user.MfaEnabled {
			challenge, err := srv.tokenService.SignChallengeToken(user.ID)
			if err != nil {
				return errors.Wrap(err, "failed to sign mfa challenge")
			}

			output = &usecase.LoginOutput{MfaRequired: true, ChallengeToken: challenge}

			return nil
		}

		pair, sessionID, err := srv.issueSession(ctx, repoFactory, user, input.DeviceInfo, input.IPAddress, input.UserAgent)
		if err != nil {
			return err
		}

		output = &usecase.LoginOutput{Tokens: pair, SessionID: sessionID, User: user}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventLoginSucceeded, UserID: user.ID.String(), Email: email,
			IPAddress: input.IPAddress,
			Metadata:  map[string]string{"session_id": sessionID.String()},
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Login failed", slog.String("email", email), slog.Any("error", err))

		return nil, err
	}

	return output, nil
}

// recordFailedAttempt increments the failure counter under the held row
// lock. The attempt that reaches the threshold sets the lock but still
// reports invalid credentials; only subsequent attempts see the locked
// state.
func (srv *authService) recordFailedAttempt(
	ctx context.Context,
	userRepo repository.UserRepository,
	user *entity.User,
	ipAddress string,
) error {
	user.FailedLoginAttempts++

	locked := user.FailedLoginAttempts >= srv.lockout.MaxAttempts
	if locked {
		until := srv.now().Add(srv.lockout.Duration)
		user.LockedUntil = &until
	}

	if err := userRepo.Update(ctx, user); err != nil {
		return errors.Wrap(err, "failed to record failed attempt")
	}

	srv.publish(ctx, &service.SecurityEvent{
		Type: service.EventLoginFailed, UserID: user.ID.String(), Email: user.Email,
		IPAddress: ipAddress,
		Metadata:  map[string]string{"reason": "invalid password"},
	})
	if locked {
		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventAccountLocked, UserID: user.ID.String(), Email: user.Email,
			IPAddress: ipAddress,
		})
	}

	return domainerrors.ErrInvalidCredentials
}

// CompleteMfaLogin finishes a login whose first factor already passed. The
// challenge token proves that; the TOTP code or a recovery code is the
// second factor. A used recovery code is consumed under the row lock.
func (srv *authService) CompleteMfaLogin(ctx context.Context, input *usecase.CompleteMfaLoginInput) (*usecase.LoginOutput, error) {
	claims, err := srv.tokenService.VerifyChallengeToken(input.ChallengeToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("malformed challenge subject")
	}

	var output *usecase.LoginOutput

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to load user for mfa completion")
		}

		if !user.MfaEnabled {
			return domainerrors.ErrMfaNotEnabled
		}
		if user.Locked(srv.now()) {
			return domainerrors.ErrAccountLocked
		}

		switch {
		case input.Code != "":
			if !srv.mfaService.Validate(input.Code, user.MfaSecret) {
				srv.publish(ctx, &service.SecurityEvent{
					Type: service.EventLoginFailed, UserID: user.ID.String(), Email: user.Email,
					IPAddress: input.IPAddress,
					Metadata:  map[string]string{"reason": "invalid mfa code"},
				})

				return domainerrors.ErrMfaInvalid
			}
		case input.RecoveryCode != "":
			if !srv.consumeRecoveryCode(user, input.RecoveryCode) {
				srv.publish(ctx, &service.SecurityEvent{
					Type: service.EventLoginFailed, UserID: user.ID.String(), Email: user.Email,
					IPAddress: input.IPAddress,
					Metadata:  map[string]string{"reason": "invalid recovery code"},
				})

				return domainerrors.ErrMfaInvalid
			}
			if err := userRepo.Update(ctx, user); err != nil {
				return errors.Wrap(err, "failed to consume recovery code")
			}
		default:
			return domainerrors.ErrMfaRequired
		}

		pair, sessionID, err := srv.issueSession(ctx, repoFactory, user, input.DeviceInfo, input.IPAddress, input.UserAgent)
		if err != nil {
			return err
		}

		output = &usecase.LoginOutput{Tokens: pair, SessionID: sessionID, User: user}

		srv.publish(ctx, &service.SecurityEvent{
			Type: service.EventLoginSucceeded, UserID: user.ID.String(), Email: user.Email,
			IPAddress: input.IPAddress,
			Metadata:  map[string]string{"session_id": sessionID.String(), "second_factor": "true"},
		})

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("MFA login completion failed", slog.Any("userID", userID), slog.Any("error", err))

		return nil, err
	}

	return output, nil
}

// consumeRecoveryCode removes the matching digest from the user's unused
// set. Each code works exactly once.
func (srv *authService) consumeRecoveryCode(user *entity.User, code string) bool {
	digest := srv.mfaService.HashRecoveryCode(code)

	idx := slices.Index(user.RecoveryCodeHashes, digest)
	if idx < 0 {
		return false
	}

	user.RecoveryCodeHashes = slices.Delete(user.RecoveryCodeHashes, idx, idx+1)

	return true
}
