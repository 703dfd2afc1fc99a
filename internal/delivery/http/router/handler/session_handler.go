package handler

import (
	"net/http"
	"time"

	"keygate/internal/delivery/http/response"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// sessionView is the client-facing shape of one login session.
type sessionView struct {
	ID             uuid.UUID `json:"id"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	Current        bool      `json:"current"`
}

// SessionHandler holds dependencies for session management endpoints.
type SessionHandler struct {
	uc usecase.SessionUsecase
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(uc usecase.SessionUsecase) *SessionHandler {
	return &SessionHandler{uc: uc}
}

// List returns the caller's active sessions, flagging the current one.
func (h *SessionHandler) List(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	infos, err := h.uc.ListSessions(c.Request().Context(), userID, currentSessionID(c))
	if err != nil {
		return errors.WithStack(err)
	}

	views := make([]*sessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, &sessionView{
			ID:             info.Session.ID,
			DeviceInfo:     info.Session.DeviceInfo,
			IPAddress:      info.Session.IPAddress,
			UserAgent:      info.Session.UserAgent,
			LastActivityAt: info.Session.LastActivityAt,
			CreatedAt:      info.Session.CreatedAt,
			Current:        info.Current,
		})
	}

	return response.Success(c, http.StatusOK, views, "Active sessions")
}

// Revoke ends one of the caller's sessions by ID.
func (h *SessionHandler) Revoke(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BindingError(c, "Invalid session ID")
	}

	if err := h.uc.RevokeSession(c.Request().Context(), userID, sessionID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Session revoked")
}

// RevokeAll ends every session of the caller except the current one, so
// "sign out everywhere else" keeps the caller signed in.
func (h *SessionHandler) RevokeAll(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	if err := h.uc.RevokeAllSessions(c.Request().Context(), userID, currentSessionID(c)); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "All other sessions revoked")
}
