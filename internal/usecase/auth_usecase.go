// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"keygate/internal/domain/entity"
	"keygate/internal/domain/service"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new account. The
// client metadata is recorded on the session registration opens.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// VerifyEmailInput carries the email-verification challenge token.
type VerifyEmailInput struct {
	Token string
}

// LoginInput defines the data required to authenticate. The client
// metadata is recorded on the session created by a successful login.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// CompleteMfaLoginInput finishes a login that required a second factor.
// Exactly one of Code (TOTP) or RecoveryCode must be provided.
type CompleteMfaLoginInput struct {
	ChallengeToken string
	Code           string
	RecoveryCode   string
	DeviceInfo     string
	IPAddress      string
	UserAgent      string
}

// RefreshInput carries the raw refresh token presented for rotation.
type RefreshInput struct {
	RefreshToken string
	IPAddress    string
}

// LogoutInput carries the raw refresh token whose session ends.
type LogoutInput struct {
	RefreshToken string
}

// ChangePasswordInput is the authenticated password change request.
type ChangePasswordInput struct {
	UserID          uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// ForgotPasswordInput starts the password reset flow.
type ForgotPasswordInput struct {
	Email     string
	IPAddress string
}

// ResetPasswordInput completes the password reset flow.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
	IPAddress   string
}

// RequestRecoveryInput starts account recovery for users locked out of
// their second factor.
type RequestRecoveryInput struct {
	Email     string
	IPAddress string
}

// CompleteRecoveryInput completes account recovery: proves control of the
// email, disables MFA and sets a fresh password. For MFA-enabled accounts
// the mailed token is not enough; MfaCode (TOTP) or RecoveryCode must
// also be provided.
type CompleteRecoveryInput struct {
	Token        string
	NewPassword  string
	MfaCode      string
	RecoveryCode string
	IPAddress    string
}

// DisableMfaInput turns off the second factor. The current password and a
// valid code (TOTP or recovery) are both required.
type DisableMfaInput struct {
	UserID       uuid.UUID
	Password     string
	Code         string
	RecoveryCode string
}

// --- Output DTOs ---

// RegisterOutput returns the new account signed in: registration counts
// as the first login, so it carries a token pair like LoginOutput does.
type RegisterOutput struct {
	User      *entity.User
	Tokens    *TokenPair
	SessionID uuid.UUID
}

// TokenPair is one issued access/refresh credential pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // Access token lifetime in seconds.
}

// LoginOutput returns either a completed login (Tokens set) or an MFA
// challenge (MfaRequired true, ChallengeToken set). Never both.
type LoginOutput struct {
	MfaRequired    bool
	ChallengeToken string

	Tokens    *TokenPair
	SessionID uuid.UUID
	User      *entity.User
}

// RefreshOutput returns the rotated credential pair.
type RefreshOutput struct {
	Tokens    *TokenPair
	SessionID uuid.UUID
}

// MfaSetupOutput returns the pending enrollment. Recovery codes appear
// here in plaintext exactly once; only digests are stored.
type MfaSetupOutput struct {
	Secret        string
	OtpauthURL    string
	QRCodePNG     []byte
	RecoveryCodes []string
}

// AuthUsecase defines the authentication lifecycle operations the
// delivery layer depends on: registration, login with optional second
// factor, token rotation, and the password reset/recovery flows.
type AuthUsecase interface {
	Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error)
	VerifyEmail(ctx context.Context, input *VerifyEmailInput) error

	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)
	CompleteMfaLogin(ctx context.Context, input *CompleteMfaLoginInput) (*LoginOutput, error)

	Refresh(ctx context.Context, input *RefreshInput) (*RefreshOutput, error)
	Logout(ctx context.Context, input *LogoutInput) error

	ChangePassword(ctx context.Context, input *ChangePasswordInput) error
	ForgotPassword(ctx context.Context, input *ForgotPasswordInput) error
	ResetPassword(ctx context.Context, input *ResetPasswordInput) error

	RequestAccountRecovery(ctx context.Context, input *RequestRecoveryInput) error
	CompleteAccountRecovery(ctx context.Context, input *CompleteRecoveryInput) error

	SetupMfa(ctx context.Context, userID uuid.UUID) (*MfaSetupOutput, error)
	ActivateMfa(ctx context.Context, userID uuid.UUID, code string) error
	DisableMfa(ctx context.Context, input *DisableMfaInput) error

	// ValidateAccess verifies an access token and returns its claims.
	ValidateAccess(ctx context.Context, accessToken string) (*service.AccessClaims, error)
}
