package service

// MfaEnrollment is everything a client needs to enroll an authenticator:
// the shared secret, the otpauth provisioning URL and the same URL rendered
// as a QR code PNG.
type MfaEnrollment struct {
	Secret        string
	OtpauthURL    string
	QRCodePNG     []byte
	RecoveryCodes []string // Plaintext, shown exactly once at enrollment.
}

// MfaService wraps the TOTP primitive and recovery-code generation. The
// TOTP algorithm itself is a standard external primitive; only its
// integration contract lives here.
type MfaService interface {
	// GenerateEnrollment creates a fresh secret, provisioning URL, QR code
	// and a batch of single-use recovery codes for the account.
	GenerateEnrollment(email string) (*MfaEnrollment, error)

	// Validate reports whether code is currently valid for secret.
	Validate(code, secret string) bool

	// HashRecoveryCode computes the digest under which a recovery code is stored.
	HashRecoveryCode(code string) string
}
