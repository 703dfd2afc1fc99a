// Package auth provides concrete implementations for authentication-related
// domain services.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"keygate/config"
	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// jwtService implements service.TokenService with HS256-signed JWTs.
// Access and challenge tokens are signed with the access secret, refresh
// tokens with a separate secret, so a leaked access key cannot forge
// refresh credentials.
type jwtService struct {
	accessSecret    string
	refreshSecret   string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	mfaChallengeTTL time.Duration
	now             func() time.Time
}

// NewJWTService is the constructor for jwtService.
func NewJWTService(cfg *config.Config) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}

	return &jwtService{
		accessSecret:    cfg.SecretKey.Access,
		refreshSecret:   cfg.SecretKey.Refresh,
		accessTTL:       cfg.Token.AccessTTL,
		refreshTTL:      cfg.Token.RefreshTTL,
		mfaChallengeTTL: cfg.Token.MfaChallengeTTL,
		now:             time.Now,
	}, nil
}

// SignAccessToken mints a short-lived access token embedding the subject,
// email, role, session binding and tenant memberships.
func (s *jwtService) SignAccessToken(user *entity.User, sessionID uuid.UUID) (string, error) {
	now := s.now()
	claims := &service.AccessClaims{
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		Tenants:   user.TenantIDs,
		TokenType: service.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.accessSecret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}

	return signed, nil
}

// SignRefreshToken mints a refresh token bound to a session. The returned
// jti doubles as the persisted record's identity.
func (s *jwtService) SignRefreshToken(userID, sessionID uuid.UUID) (string, uuid.UUID, error) {
	now := s.now()
	jti := uuid.New()
	claims := &service.RefreshClaims{
		SessionID: sessionID,
		TokenType: service.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.refreshSecret))
	if err != nil {
		return "", uuid.Nil, errors.Wrap(err, "failed to sign refresh token")
	}

	return signed, jti, nil
}

// SignChallengeToken mints the short-lived intermediate token returned when
// a login still needs its second factor.
func (s *jwtService) SignChallengeToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &service.ChallengeClaims{
		TokenType: service.TokenTypeChallenge,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.mfaChallengeTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.accessSecret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign challenge token")
	}

	return signed, nil
}

// VerifyAccessToken cryptographically verifies signature, expiry and the
// type discriminator. No store lookup; cheap enough for every request.
func (s *jwtService) VerifyAccessToken(token string) (*service.AccessClaims, error) {
	claims := &service.AccessClaims{}
	if err := s.parse(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != service.TokenTypeAccess {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("unexpected token type")
	}

	return claims, nil
}

// VerifyRefreshToken verifies signature, expiry and type. Revocation status
// lives in the store and is checked by the orchestrator.
func (s *jwtService) VerifyRefreshToken(token string) (*service.RefreshClaims, error) {
	claims := &service.RefreshClaims{}
	if err := s.parse(token, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != service.TokenTypeRefresh {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("unexpected token type")
	}

	return claims, nil
}

// VerifyChallengeToken verifies the intermediate MFA token.
func (s *jwtService) VerifyChallengeToken(token string) (*service.ChallengeClaims, error) {
	claims := &service.ChallengeClaims{}
	if err := s.parse(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != service.TokenTypeChallenge {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("unexpected token type")
	}

	return claims, nil
}

// HashToken computes the SHA-256 digest under which refresh tokens and
// challenge values are persisted. The raw value never touches the store.
func (s *jwtService) HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *jwtService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (s *jwtService) RefreshTokenTTL() time.Duration {
	return s.refreshTTL
}

func (s *jwtService) parse(token string, claims jwt.Claims, secret string) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domainerrors.ErrTokenExpired.WrapMessage("token expired")
		}

		return domainerrors.ErrTokenInvalid.WrapMessage("failed to parse token structure")
	}
	if !parsed.Valid {
		return domainerrors.ErrTokenInvalid.WrapMessage("token signature invalid")
	}

	return nil
}
