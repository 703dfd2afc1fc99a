package auth

import (
	"strconv"
	"unicode"

	"keygate/config"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/service"

	"golang.org/x/crypto/bcrypt"
)

// bcryptHasher implements service.PasswordHasher with bcrypt plus the
// configured password policy.
type bcryptHasher struct {
	cost   int
	policy config.PasswordConfig
}

// NewBcryptHasher is the constructor for bcryptHasher.
func NewBcryptHasher(cfg *config.Config) service.PasswordHasher {
	cost := bcrypt.DefaultCost
	if cfg.Password != nil && cfg.Password.BcryptCost >= bcrypt.MinCost && cfg.Password.BcryptCost <= bcrypt.MaxCost {
		cost = cfg.Password.BcryptCost
	}

	policy := config.PasswordConfig{}
	if cfg.Password != nil {
		policy = *cfg.Password
	}

	return &bcryptHasher{cost: cost, policy: policy}
}

// Hash generates a salted hash from a plaintext password. bcrypt handles
// salt generation.
func (h *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)

	return string(bytes), err
}

// Check compares a plaintext password with a bcrypt hash.
func (h *bcryptHasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePolicy checks the plaintext against the configured policy. The
// failed rule is named in the error details; unlike credential errors this
// is safe, user-actionable information.
func (h *bcryptHasher) ValidatePolicy(password string) error {
	if len(password) < h.policy.MinLength {
		return domainerrors.ErrPasswordPolicy.WithDetails(
			"password must be at least " + strconv.Itoa(h.policy.MinLength) + " characters")
	}
	if h.policy.MaxLength > 0 && len(password) > h.policy.MaxLength {
		return domainerrors.ErrPasswordPolicy.WithDetails(
			"password must be at most " + strconv.Itoa(h.policy.MaxLength) + " characters")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsNumber(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if h.policy.RequireUppercase && !hasUpper {
		return domainerrors.ErrPasswordPolicy.WithDetails("password must contain an uppercase letter")
	}
	if h.policy.RequireLowercase && !hasLower {
		return domainerrors.ErrPasswordPolicy.WithDetails("password must contain a lowercase letter")
	}
	if h.policy.RequireNumbers && !hasNumber {
		return domainerrors.ErrPasswordPolicy.WithDetails("password must contain a number")
	}
	if h.policy.RequireSpecial && !hasSpecial {
		return domainerrors.ErrPasswordPolicy.WithDetails("password must contain a special character")
	}

	return nil
}
