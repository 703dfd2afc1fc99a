// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"keygate/internal/delivery/http/response"
	"keygate/internal/domain/entity"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// userView is the client-facing shape of an account. The credential hash
// and challenge state never leave the service.
type userView struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	MfaEnabled    bool      `json:"mfa_enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUserView(user *entity.User) *userView {
	return &userView{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		MfaEnabled:    user.MfaEnabled,
		CreatedAt:     user.CreatedAt,
	}
}

// tokenView is the issued credential pair as returned to clients.
type tokenView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenView(pair *usecase.TokenPair) *tokenView {
	return &tokenView{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

// AuthHandler holds dependencies for the authentication endpoints.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{uc: uc, logger: logger}
}

type registerRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceInfo string `json:"device_info" validate:"max=255"`
}

// Register handles account creation. The new account is signed in
// immediately, so the response carries tokens like a login does.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid registration input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.Register(c.Request().Context(), &usecase.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, map[string]any{
		"user":       toUserView(output.User),
		"tokens":     toTokenView(output.Tokens),
		"session_id": output.SessionID,
	}, "User registered successfully")
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyEmail consumes an email-verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid verification input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	if err := h.uc.VerifyEmail(c.Request().Context(), &usecase.VerifyEmailInput{Token: req.Token}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Email verified")
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceInfo string `json:"device_info" validate:"max=255"`
}

// Login authenticates a password. The response either carries tokens or,
// for MFA-enabled accounts, an intermediate challenge token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.Login(c.Request().Context(), &usecase.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if output.MfaRequired {
		return response.Success(c, http.StatusOK, map[string]any{
			"mfa_required":    true,
			"challenge_token": output.ChallengeToken,
		}, "Second factor required")
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"tokens":     toTokenView(output.Tokens),
		"session_id": output.SessionID,
		"user":       toUserView(output.User),
	}, "Login successful")
}

type completeMfaLoginRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code"`
	RecoveryCode   string `json:"recovery_code"`
	DeviceInfo     string `json:"device_info" validate:"max=255"`
}

// CompleteMfaLogin finishes a login whose password already passed.
func (h *AuthHandler) CompleteMfaLogin(c echo.Context) error {
	var req completeMfaLoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid MFA login input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.CompleteMfaLogin(c.Request().Context(), &usecase.CompleteMfaLoginInput{
		ChallengeToken: req.ChallengeToken,
		Code:           req.Code,
		RecoveryCode:   req.RecoveryCode,
		DeviceInfo:     req.DeviceInfo,
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"tokens":     toTokenView(output.Tokens),
		"session_id": output.SessionID,
		"user":       toUserView(output.User),
	}, "Login successful")
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid refresh input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.Refresh(c.Request().Context(), &usecase.RefreshInput{
		RefreshToken: req.RefreshToken,
		IPAddress:    c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"tokens":     toTokenView(output.Tokens),
		"session_id": output.SessionID,
	}, "Token refreshed successfully")
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Logout ends the session bound to the presented refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid logout input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	if err := h.uc.Logout(c.Request().Context(), &usecase.LogoutInput{RefreshToken: req.RefreshToken}); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Logout successful")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ChangePassword is the authenticated password change.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid password change input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err = h.uc.ChangePassword(c.Request().Context(), &usecase.ChangePasswordInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Password changed; all sessions revoked")
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword starts the mail-driven reset flow. The response is the
// same whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err := h.uc.ForgotPassword(c.Request().Context(), &usecase.ForgotPasswordInput{
		Email:     req.Email,
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "If the account exists, a reset mail has been sent")
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ResetPassword completes the reset flow.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err := h.uc.ResetPassword(c.Request().Context(), &usecase.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IPAddress:   c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Password reset; all sessions revoked")
}

// RequestRecovery starts account recovery for users locked out of their
// second factor. Uniform response, like ForgotPassword.
func (h *AuthHandler) RequestRecovery(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err := h.uc.RequestAccountRecovery(c.Request().Context(), &usecase.RequestRecoveryInput{
		Email:     req.Email,
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "If the account exists, a recovery mail has been sent")
}

type completeRecoveryRequest struct {
	Token        string `json:"token" validate:"required"`
	NewPassword  string `json:"new_password" validate:"required"`
	MfaCode      string `json:"mfa_code"`
	RecoveryCode string `json:"recovery_code"`
}

// CompleteRecovery consumes the recovery challenge: MFA off, new password,
// everything signed out. MFA-enabled accounts must present a TOTP or
// recovery code alongside the mailed token.
func (h *AuthHandler) CompleteRecovery(c echo.Context) error {
	var req completeRecoveryRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err := h.uc.CompleteAccountRecovery(c.Request().Context(), &usecase.CompleteRecoveryInput{
		Token:        req.Token,
		NewPassword:  req.NewPassword,
		MfaCode:      req.MfaCode,
		RecoveryCode: req.RecoveryCode,
		IPAddress:    c.RealIP(),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Account recovered; all sessions revoked")
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "Service is healthy")
}
