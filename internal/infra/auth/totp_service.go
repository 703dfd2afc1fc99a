package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"

	"keygate/config"
	"keygate/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrCodeSize         = 256
	recoveryCodeBytes  = 5 // 8 base32 characters per half.
	recoveryCodeGroups = 2
)

// totpService implements service.MfaService on top of the standard TOTP
// primitive plus QR provisioning for authenticator apps.
type totpService struct {
	issuer            string
	recoveryCodeCount int
}

// NewTOTPService is the constructor for totpService.
func NewTOTPService(cfg *config.Config) service.MfaService {
	return &totpService{
		issuer:            cfg.MFA.Issuer,
		recoveryCodeCount: cfg.MFA.RecoveryCodeCount,
	}
}

// GenerateEnrollment creates a fresh secret, its otpauth URL, the QR code
// PNG a client renders during enrollment, and a batch of single-use
// recovery codes.
func (s *totpService) GenerateEnrollment(email string) (*service.MfaEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate totp secret")
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode provisioning qr code")
	}

	codes, err := s.generateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	return &service.MfaEnrollment{
		Secret:        key.Secret(),
		OtpauthURL:    key.URL(),
		QRCodePNG:     png,
		RecoveryCodes: codes,
	}, nil
}

// Validate reports whether code is currently valid for secret.
func (s *totpService) Validate(code, secret string) bool {
	return totp.Validate(strings.TrimSpace(code), secret)
}

// HashRecoveryCode computes the digest under which a recovery code is
// stored. Codes are normalized so "abcd-efgh" and "ABCDEFGH" match.
func (s *totpService) HashRecoveryCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:])
}

func (s *totpService) generateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, s.recoveryCodeCount)
	for range s.recoveryCodeCount {
		groups := make([]string, 0, recoveryCodeGroups)
		for range recoveryCodeGroups {
			buf := make([]byte, recoveryCodeBytes)
			if _, err := rand.Read(buf); err != nil {
				return nil, errors.Wrap(err, "failed to generate recovery code")
			}
			groups = append(groups, base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
		}
		codes = append(codes, strings.Join(groups, "-"))
	}

	return codes, nil
}
