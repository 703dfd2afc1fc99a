package auth

import (
	"testing"

	"keygate/config"
	domainerrors "keygate/internal/domain/errors"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func testPasswordConfig() *config.Config {
	return &config.Config{
		Password: &config.PasswordConfig{
			MinLength:        8,
			MaxLength:        128,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumbers:   true,
			RequireSpecial:   true,
			BcryptCost:       bcrypt.MinCost, // Lower cost for faster testing
		},
	}
}

func TestBcryptHasher_HashAndCheck(t *testing.T) {
	hasher := NewBcryptHasher(testPasswordConfig())

	password := "StrongPass123!"
	hash, err := hasher.Hash(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, hasher.Check(password, hash))
	assert.False(t, hasher.Check("WrongPassword123!", hash))
	assert.False(t, hasher.Check("", hash))
	assert.False(t, hasher.Check(password, "invalid_hash"))
}

func TestBcryptHasher_ValidatePolicy(t *testing.T) {
	hasher := NewBcryptHasher(testPasswordConfig())

	validPasswords := []string{
		"StrongPass123!",
		"MySecure@Pass1",
		"Complex#Secret9",
		"Valid$Phrase2024",
	}
	for _, password := range validPasswords {
		err := hasher.ValidatePolicy(password)
		assert.NoError(t, err, "Expected no error for valid password: %s", password)
	}

	testCases := []struct {
		password    string
		expectedErr string
	}{
		{"123", "at least 8 characters"},
		{"PASSWORD123!", "lowercase letter"},
		{"password123!", "uppercase letter"},
		{"PasswordABC!", "number"},
		{"Password123", "special character"},
	}

	for _, tc := range testCases {
		err := hasher.ValidatePolicy(tc.password)
		assert.Error(t, err, "Expected error for password: %s", tc.password)
		assert.True(t, errors.Is(err, domainerrors.ErrPasswordPolicy))

		var appErr domainerrors.AppError
		assert.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details(), tc.expectedErr)
	}
}

func TestBcryptHasher_MaxLengthEnforced(t *testing.T) {
	cfg := testPasswordConfig()
	cfg.Password.MaxLength = 16
	hasher := NewBcryptHasher(cfg)

	err := hasher.ValidatePolicy("ThisPasswordIsWayTooLong123!")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrPasswordPolicy))
}

func TestBcryptHasher_RelaxedPolicy(t *testing.T) {
	cfg := testPasswordConfig()
	cfg.Password.RequireUppercase = false
	cfg.Password.RequireSpecial = false
	hasher := NewBcryptHasher(cfg)

	assert.NoError(t, hasher.ValidatePolicy("lowercase123"))
}

func TestBcryptHasher_UsesConfiguredCost(t *testing.T) {
	cfg := testPasswordConfig()
	cfg.Password.BcryptCost = 6
	hasher := NewBcryptHasher(cfg)

	hash, err := hasher.Hash("StrongPass123!")
	assert.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	assert.NoError(t, err)
	assert.Equal(t, 6, cost)
}

func TestBcryptHasher_UnicodePassword(t *testing.T) {
	hasher := NewBcryptHasher(testPasswordConfig())

	err := hasher.ValidatePolicy("Pässphräse123!")
	assert.NoError(t, err)
}
