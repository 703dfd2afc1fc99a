package service

import (
	"time"

	"keygate/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminators. Verification fails when the discriminator does
// not match the expected kind, so an access token can never be substituted
// for a refresh token or vice versa.
const (
	TokenTypeAccess    = "access"
	TokenTypeRefresh   = "refresh"
	TokenTypeChallenge = "mfa"
)

// AccessClaims is the payload of a signed access token. Validity is purely
// cryptographic plus expiry; no store lookup is involved.
type AccessClaims struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID uuid.UUID `json:"sid"`
	Tenants   []string  `json:"tenants,omitempty"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a signed refresh token. The bearer value
// is self-describing, but the digest stored alongside the session is the
// authority for revocation status.
type RefreshClaims struct {
	SessionID uuid.UUID `json:"sid"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// ChallengeClaims is the payload of the short-lived token handed out when a
// login needs a second factor before final token issuance.
type ChallengeClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the three token kinds. Persistence of
// refresh-token records is the orchestrator's job; this service is pure
// cryptography plus claim shaping.
type TokenService interface {
	// SignAccessToken mints a short-lived access token for the user bound
	// to a session.
	SignAccessToken(user *entity.User, sessionID uuid.UUID) (string, error)

	// SignRefreshToken mints a refresh token bound to a session and returns
	// the raw bearer value together with its jti.
	SignRefreshToken(userID, sessionID uuid.UUID) (raw string, jti uuid.UUID, err error)

	// SignChallengeToken mints the intermediate MFA challenge token.
	SignChallengeToken(userID uuid.UUID) (string, error)

	// VerifyAccessToken checks signature, expiry and type discriminator.
	VerifyAccessToken(token string) (*AccessClaims, error)

	// VerifyRefreshToken checks signature, expiry and type discriminator.
	// The store lookup by digest happens above this layer.
	VerifyRefreshToken(token string) (*RefreshClaims, error)

	// VerifyChallengeToken checks the intermediate MFA token.
	VerifyChallengeToken(token string) (*ChallengeClaims, error)

	// HashToken computes the one-way digest under which a token is persisted.
	HashToken(raw string) string

	// AccessTokenTTL returns the configured access token lifetime.
	AccessTokenTTL() time.Duration

	// RefreshTokenTTL returns the configured refresh token lifetime.
	RefreshTokenTTL() time.Duration
}
