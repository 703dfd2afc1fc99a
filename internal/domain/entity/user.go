// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MfaType identifies the second-factor mechanism enabled on an account.
type MfaType string

const (
	// MfaTypeNone means no second factor is configured.
	MfaTypeNone MfaType = ""
	// MfaTypeTOTP is a time-based one-time password (RFC 6238) factor.
	MfaTypeTOTP MfaType = "totp"
)

// User is the credential-store entry for one account. It carries the
// password hash, the lockout state machine, the MFA state and the
// single-use challenge tokens for reset and recovery flows.
type User struct {
	ID           uuid.UUID
	Email        string // Stored lowercase; uniqueness is case-insensitive.
	Name         string
	PasswordHash string // bcrypt hash of the current password. Never exposed.
	Role         string

	// Lockout state machine. LockedUntil in the future rejects all
	// authentication regardless of credential correctness.
	FailedLoginAttempts int
	LockedUntil         *time.Time

	EmailVerified     bool
	VerificationToken string // Hash of the outstanding email-verification token.

	MfaEnabled         bool
	MfaSecret          string // Opaque TOTP secret, set during enrollment.
	MfaType            MfaType
	RecoveryCodeHashes []string // One-way digests of unused MFA recovery codes.

	// At most one live challenge per purpose: issuing a new token
	// overwrites (and thereby invalidates) the previous one.
	ResetTokenHash         string
	ResetTokenExpiresAt    *time.Time
	RecoveryTokenHash      string
	RecoveryTokenExpiresAt *time.Time

	TenantIDs []string // Tenant memberships embedded into access tokens.

	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeEmail lowers and trims an email so lookups and the unique
// constraint behave case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Locked reports whether the account rejects authentication at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// PasswordExpiresAt derives the password's expiry from its age. A zero
// maxAge disables expiry. The value is informational; login does not
// enforce it (policy decision, see config).
func (u *User) PasswordExpiresAt(maxAge time.Duration) (time.Time, bool) {
	if maxAge <= 0 || u.PasswordChangedAt.IsZero() {
		return time.Time{}, false
	}

	return u.PasswordChangedAt.Add(maxAge), true
}

// ClearResetToken invalidates the outstanding password-reset challenge.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = ""
	u.ResetTokenExpiresAt = nil
}

// ClearRecoveryToken invalidates the outstanding account-recovery challenge.
func (u *User) ClearRecoveryToken() {
	u.RecoveryTokenHash = ""
	u.RecoveryTokenExpiresAt = nil
}
