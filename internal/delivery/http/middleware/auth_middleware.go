package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"keygate/internal/delivery/http/response"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context keys set by Authenticate for downstream handlers.
const (
	ContextUserID    = "userID"
	ContextSessionID = "sessionID"
	ContextRole      = "role"
	ContextTenants   = "tenants"
)

// AuthMiddleware validates bearer access tokens. Validation is purely
// cryptographic; the session activity bump is best-effort and never
// blocks the request.
type AuthMiddleware struct {
	tokenSvc    service.TokenService
	sessionRepo repository.SessionRepository
	logger      *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(
	tokenSvc service.TokenService,
	sessionRepo repository.SessionRepository,
	logger *slog.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokenSvc:    tokenSvc,
		sessionRepo: sessionRepo,
		logger:      logger,
	}
}

// Authenticate rejects requests without a valid access token and exposes
// the token's identity claims on the echo context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Authorization header is missing")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return response.Unauthorized(c, "Invalid token format, must be Bearer token")
		}

		claims, err := m.tokenSvc.VerifyAccessToken(tokenString)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextSessionID, claims.SessionID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextTenants, claims.Tenants)

		m.touchSession(claims.SessionID)

		return next(c)
	}
}

// touchSession bumps the session activity timestamp off the request path.
func (m *AuthMiddleware) touchSession(sessionID uuid.UUID) {
	if sessionID == uuid.Nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := m.sessionRepo.UpdateLastActivity(ctx, sessionID, time.Now()); err != nil {
			m.logger.Debug("Failed to update session activity",
				slog.String("sessionID", sessionID.String()),
				slog.Any("error", err))
		}
	}()
}

// RequireRole checks the authenticated user's role. It must be used after
// Authenticate.
func (m *AuthMiddleware) RequireRole(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ContextRole).(string)
			if !ok || role != requiredRole {
				return response.Error(c, http.StatusForbidden, "FORBIDDEN",
					"Permission denied: require '"+requiredRole+"' role", "")
			}

			return next(c)
		}
	}
}
