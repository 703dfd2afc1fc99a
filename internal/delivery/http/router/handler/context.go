package handler

import (
	"keygate/internal/delivery/http/middleware"
	"keygate/internal/delivery/http/response"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// currentUserID reads the authenticated user's ID from the context set by
// the auth middleware.
func currentUserID(c echo.Context) (uuid.UUID, error) {
	subject, ok := c.Get(middleware.ContextUserID).(string)
	if !ok {
		return uuid.Nil, response.Unauthorized(c, "Missing authentication context")
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, response.Unauthorized(c, "Invalid user ID in token")
	}

	return userID, nil
}

// currentSessionID reads the caller's session ID from the context.
func currentSessionID(c echo.Context) uuid.UUID {
	sessionID, ok := c.Get(middleware.ContextSessionID).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}

	return sessionID
}
