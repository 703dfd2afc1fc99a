package handler

import (
	"encoding/base64"
	"net/http"

	"keygate/internal/delivery/http/response"
	"keygate/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// MfaHandler holds dependencies for second-factor management endpoints.
// All of them require an authenticated caller.
type MfaHandler struct {
	uc usecase.AuthUsecase
}

// NewMfaHandler is the constructor for MfaHandler, injected by Fx.
func NewMfaHandler(uc usecase.AuthUsecase) *MfaHandler {
	return &MfaHandler{uc: uc}
}

// Setup starts a pending TOTP enrollment. The secret and recovery codes
// appear in this response exactly once.
func (h *MfaHandler) Setup(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	output, err := h.uc.SetupMfa(c.Request().Context(), userID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"secret":         output.Secret,
		"otpauth_url":    output.OtpauthURL,
		"qr_code_png":    base64.StdEncoding.EncodeToString(output.QRCodePNG),
		"recovery_codes": output.RecoveryCodes,
	}, "Scan the QR code and confirm with a code to activate")
}

type activateMfaRequest struct {
	Code string `json:"code" validate:"required"`
}

// Activate confirms the pending enrollment with a live authenticator code.
func (h *MfaHandler) Activate(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req activateMfaRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid MFA activation input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	if err := h.uc.ActivateMfa(c.Request().Context(), userID, req.Code); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Multi-factor authentication enabled")
}

type disableMfaRequest struct {
	Password     string `json:"password" validate:"required"`
	Code         string `json:"code"`
	RecoveryCode string `json:"recovery_code"`
}

// Disable turns the second factor off. Password plus a valid code (TOTP
// or recovery) are both required.
func (h *MfaHandler) Disable(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req disableMfaRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid MFA disable input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	err = h.uc.DisableMfa(c.Request().Context(), &usecase.DisableMfaInput{
		UserID:       userID,
		Password:     req.Password,
		Code:         req.Code,
		RecoveryCode: req.RecoveryCode,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Multi-factor authentication disabled")
}
