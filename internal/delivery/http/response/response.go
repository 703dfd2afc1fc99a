// Package response renders the unified API envelope.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	domainerrors "keygate/internal/domain/errors"
)

// Success renders a successful response.
func Success(c echo.Context, statusCode int, data any, message string) error {
	if message == "" {
		message = "Success"
	}

	return c.JSON(statusCode, map[string]any{
		"success": true,
		"code":    statusCode,
		"message": message,
		"data":    data,
	})
}

// Error renders a failed response with a business error code.
func Error(c echo.Context, statusCode int, errorCode, message, details string) error {
	if message == "" {
		message = http.StatusText(statusCode)
	}

	var info *domainerrors.ErrorInfo
	if errorCode != "" {
		info = &domainerrors.ErrorInfo{Code: errorCode, Message: message, Details: details}
	}

	return c.JSON(statusCode, domainerrors.Response{
		Success: false,
		Code:    statusCode,
		Message: message,
		Error:   info,
	})
}

// BindingError renders a 400 for malformed request bodies.
func BindingError(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, "INVALID_INPUT", message, "")
}

// Unauthorized renders a 401.
func Unauthorized(c echo.Context, message string) error {
	return Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// TooManyRequests renders a 429.
func TooManyRequests(c echo.Context, message string) error {
	return Error(c, http.StatusTooManyRequests, "RATE_LIMITED", message, "")
}
