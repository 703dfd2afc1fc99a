package impl

import (
	"context"
	"strings"
	"testing"
	"time"

	"keygate/internal/domain/entity"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "keygate/internal/domain/errors"
)

func TestChangePassword_Success(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "alice@example.com", "Str0ngPassw0rd!")
	login := fixture.login(t, "alice@example.com", "Str0ngPassw0rd!")

	err := fixture.service.ChangePassword(context.Background(), &usecase.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: "Str0ngPassw0rd!",
		NewPassword:     "Brand-New-Secret1",
	})
	require.NoError(t, err)

	// Old password is gone, new one works.
	_, err = fixture.service.Login(context.Background(), &usecase.LoginInput{
		Email: "alice@example.com", Password: "Str0ngPassw0rd!",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
	fixture.login(t, "alice@example.com", "Brand-New-Secret1")

	// Every pre-change session is dead.
	session := fixture.sessionByID(t, login.SessionID)
	assert.False(t, session.IsActive)
	_, err = fixture.service.Refresh(context.Background(), &usecase.RefreshInput{
		RefreshToken: login.Tokens.RefreshToken,
	})
	require.Error(t, err)

	assert.Len(t, fixture.publisher.eventsOfType(service.EventPasswordChanged), 1)
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "bob@example.com", "Str0ngPassw0rd!")

	err := fixture.service.ChangePassword(context.Background(), &usecase.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: "not-the-password",
		NewPassword:     "Brand-New-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
}

func TestChangePassword_PolicyEnforced(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "carol@example.com", "Str0ngPassw0rd!")

	err := fixture.service.ChangePassword(context.Background(), &usecase.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: "Str0ngPassw0rd!",
		NewPassword:     "short",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrPasswordPolicy))
}

func TestChangePassword_RejectsCurrentPassword(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "dave@example.com", "Str0ngPassw0rd!")

	err := fixture.service.ChangePassword(context.Background(), &usecase.ChangePasswordInput{
		UserID:          user.ID,
		CurrentPassword: "Str0ngPassw0rd!",
		NewPassword:     "Str0ngPassw0rd!",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrPasswordReused))
}

func TestChangePassword_ReuseWindow(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "erin@example.com", "Password-One1")

	change := func(current, next string) error {
		return fixture.service.ChangePassword(context.Background(), &usecase.ChangePasswordInput{
			UserID: user.ID, CurrentPassword: current, NewPassword: next,
		})
	}

	require.NoError(t, change("Password-One1", "Password-Two2"))
	require.NoError(t, change("Password-Two2", "Password-Three3"))

	// The original is still inside the history window.
	err := change("Password-Three3", "Password-One1")
	assert.True(t, errors.Is(err, domainerrors.ErrPasswordReused))

	// One more change pushes it out (history depth is 3).
	require.NoError(t, change("Password-Three3", "Password-Four4"))
	require.NoError(t, change("Password-Four4", "Password-One1"))
}

func TestForgotPassword_UnknownEmailIsQuiet(t *testing.T) {
	fixture := newAuthFixture(t)

	err := fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "nobody@example.com",
	})
	require.NoError(t, err)
	assert.Zero(t, fixture.mailer.count())
}

func TestResetPassword_FullFlow(t *testing.T) {
	fixture := newAuthFixture(t)
	fixture.register(t, "frank@example.com", "Str0ngPassw0rd!")
	login := fixture.login(t, "frank@example.com", "Str0ngPassw0rd!")

	require.NoError(t, fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "frank@example.com",
	}))
	token := lastMailToken(t, fixture)

	err := fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       token,
		NewPassword: "After-Reset-Secret1",
	})
	require.NoError(t, err)

	fixture.login(t, "frank@example.com", "After-Reset-Secret1")
	assert.Len(t, fixture.publisher.eventsOfType(service.EventPasswordReset), 1)

	// Reset revokes everything issued before it.
	_, err = fixture.service.Refresh(context.Background(), &usecase.RefreshInput{
		RefreshToken: login.Tokens.RefreshToken,
	})
	require.Error(t, err)

	// The challenge is single-use.
	err = fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       token,
		NewPassword: "Another-Secret-9",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrTokenInvalid))
}

func TestResetPassword_UnknownToken(t *testing.T) {
	fixture := newAuthFixture(t)

	err := fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		NewPassword: "After-Reset-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrTokenInvalid))
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	fixture := newAuthFixture(t)
	fixture.register(t, "grace@example.com", "Str0ngPassw0rd!")

	require.NoError(t, fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "grace@example.com",
	}))
	token := lastMailToken(t, fixture)

	fixture.clock.Advance(2 * time.Hour)

	err := fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       token,
		NewPassword: "After-Reset-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))

	// Expiry consumed the challenge; retrying is now an unknown token.
	err = fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       token,
		NewPassword: "After-Reset-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrTokenInvalid))
}

func TestResetPassword_ReissueInvalidatesPrevious(t *testing.T) {
	fixture := newAuthFixture(t)
	fixture.register(t, "heidi@example.com", "Str0ngPassw0rd!")

	require.NoError(t, fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "heidi@example.com",
	}))
	first := lastMailToken(t, fixture)

	require.NoError(t, fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "heidi@example.com",
	}))
	second := lastMailToken(t, fixture)
	require.NotEqual(t, first, second)

	err := fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       first,
		NewPassword: "After-Reset-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrTokenInvalid))

	require.NoError(t, fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       second,
		NewPassword: "After-Reset-Secret1",
	}))
}

func TestResetPassword_ClearsLockout(t *testing.T) {
	fixture := newAuthFixture(t)
	fixture.register(t, "ivan@example.com", "Str0ngPassw0rd!")

	for i := 0; i < 3; i++ {
		_, _ = fixture.service.Login(context.Background(), &usecase.LoginInput{
			Email: "ivan@example.com", Password: "wrong-password",
		})
	}

	require.NoError(t, fixture.service.ForgotPassword(context.Background(), &usecase.ForgotPasswordInput{
		Email: "ivan@example.com",
	}))
	require.NoError(t, fixture.service.ResetPassword(context.Background(), &usecase.ResetPasswordInput{
		Token:       lastMailToken(t, fixture),
		NewPassword: "After-Reset-Secret1",
	}))

	// No waiting out the lock; proving mailbox control is enough.
	fixture.login(t, "ivan@example.com", "After-Reset-Secret1")
}

func TestAccountRecovery_DisablesMfa(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "judy@example.com", "Str0ngPassw0rd!")
	secret, _ := enrollMfa(t, fixture, user.ID)

	require.NoError(t, fixture.service.RequestAccountRecovery(context.Background(), &usecase.RequestRecoveryInput{
		Email: "judy@example.com",
	}))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, fixture.service.CompleteAccountRecovery(context.Background(), &usecase.CompleteRecoveryInput{
		Token:       lastMailToken(t, fixture),
		NewPassword: "After-Recovery-Secret1",
		MfaCode:     code,
	}))

	stored := fixture.userByID(t, user.ID)
	assert.False(t, stored.MfaEnabled)
	assert.Empty(t, stored.MfaSecret)
	assert.Equal(t, entity.MfaTypeNone, stored.MfaType)
	assert.Empty(t, stored.RecoveryCodeHashes)

	// The account is back to password-only login.
	output := fixture.login(t, "judy@example.com", "After-Recovery-Secret1")
	assert.False(t, output.MfaRequired)
	require.NotNil(t, output.Tokens)

	assert.Len(t, fixture.publisher.eventsOfType(service.EventAccountRecovery), 1)
}

func TestAccountRecovery_RequiresSecondFactor(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "kim@example.com", "Str0ngPassw0rd!")
	secret, _ := enrollMfa(t, fixture, user.ID)

	require.NoError(t, fixture.service.RequestAccountRecovery(context.Background(), &usecase.RequestRecoveryInput{
		Email: "kim@example.com",
	}))
	token := lastMailToken(t, fixture)

	// The mailed token alone must not strip MFA.
	err := fixture.service.CompleteAccountRecovery(context.Background(), &usecase.CompleteRecoveryInput{
		Token:       token,
		NewPassword: "After-Recovery-Secret1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrMfaRequired))

	stored := fixture.userByID(t, user.ID)
	assert.True(t, stored.MfaEnabled)
	assert.NotEmpty(t, stored.MfaSecret)

	// The failed attempt did not consume the challenge; with the second
	// factor the same token completes.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, fixture.service.CompleteAccountRecovery(context.Background(), &usecase.CompleteRecoveryInput{
		Token:       token,
		NewPassword: "After-Recovery-Secret1",
		MfaCode:     code,
	}))
}

func TestAccountRecovery_WrongCodeRejected(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "leo@example.com", "Str0ngPassw0rd!")
	enrollMfa(t, fixture, user.ID)

	require.NoError(t, fixture.service.RequestAccountRecovery(context.Background(), &usecase.RequestRecoveryInput{
		Email: "leo@example.com",
	}))

	err := fixture.service.CompleteAccountRecovery(context.Background(), &usecase.CompleteRecoveryInput{
		Token:       lastMailToken(t, fixture),
		NewPassword: "After-Recovery-Secret1",
		MfaCode:     "000000",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrMfaInvalid))

	stored := fixture.userByID(t, user.ID)
	assert.True(t, stored.MfaEnabled)
}

func TestAccountRecovery_WithRecoveryCode(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "mia@example.com", "Str0ngPassw0rd!")
	_, codes := enrollMfa(t, fixture, user.ID)

	require.NoError(t, fixture.service.RequestAccountRecovery(context.Background(), &usecase.RequestRecoveryInput{
		Email: "mia@example.com",
	}))
	require.NoError(t, fixture.service.CompleteAccountRecovery(context.Background(), &usecase.CompleteRecoveryInput{
		Token:        lastMailToken(t, fixture),
		NewPassword:  "After-Recovery-Secret1",
		RecoveryCode: codes[0],
	}))

	stored := fixture.userByID(t, user.ID)
	assert.False(t, stored.MfaEnabled)
}

func TestAccountRecovery_UnknownEmailIsQuiet(t *testing.T) {
	fixture := newAuthFixture(t)

	require.NoError(t, fixture.service.RequestAccountRecovery(context.Background(), &usecase.RequestRecoveryInput{
		Email: "nobody@example.com",
	}))
	assert.Zero(t, fixture.mailer.count())
}

// lastMailToken extracts the challenge token from the most recent mail.
// Tokens are delivered as "...: <token>\n..." in the body.
func lastMailToken(t *testing.T, fixture *authFixture) string {
	t.Helper()

	mail, ok := fixture.mailer.last()
	require.True(t, ok, "no mail was sent")

	_, rest, found := strings.Cut(mail.Body, ": ")
	require.True(t, found, "mail body carries no token: %q", mail.Body)
	token, _, _ := strings.Cut(rest, "\n")

	return token
}
