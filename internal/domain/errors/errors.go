// Package errors defines the application error taxonomy. Security-sensitive
// errors deliberately carry generic messages: credential mismatch is
// indistinguishable from an unknown account, and token-expired is
// indistinguishable from token-invalid at the boundary. Validation-shaped
// errors carry actionable detail.
package errors

import (
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// AppError is the interface for application-specific errors carried across
// the usecase boundary and rendered by the HTTP error middleware.
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-facing error message
	Details() string   // Detailed error information (optional)
}

// BaseError is the basic implementation of AppError.
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error.
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	return e.message
}

// Is matches BaseErrors by business code, so copies produced by
// WithDetails still compare equal to their sentinel under errors.Is.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)

	return ok && t.errorCode == e.errorCode
}

// WrapMessage wraps the error with additional context message.
func (e *BaseError) WrapMessage(message string) error {
	return pkgerrors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code.
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code.
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-facing error message.
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information.
func (e *BaseError) Details() string {
	return e.details
}

// WithDetails returns a copy carrying detailed error information.
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Predefined error types.
var (
	// ErrInvalidCredentials covers wrong password AND unknown account;
	// the two must stay indistinguishable in message and shape.
	ErrInvalidCredentials = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_CREDENTIALS",
		"invalid email or password",
		"",
	)

	// ErrAccountLocked is distinct from invalid credentials but carries no
	// remaining-time detail.
	ErrAccountLocked = NewBaseError(
		http.StatusLocked,
		"ACCOUNT_LOCKED",
		"account temporarily locked after too many failed attempts",
		"",
	)

	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong type
	// discriminators and digests missing from the store.
	ErrTokenInvalid = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_INVALID",
		"invalid or expired token",
		"",
	)

	// ErrTokenExpired shares the external message of ErrTokenInvalid; the
	// distinct cause exists for internal logging only.
	ErrTokenExpired = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_EXPIRED",
		"invalid or expired token",
		"",
	)

	// ErrTokenRevoked is returned when a revoked refresh token is presented
	// again inside the rotation grace window.
	ErrTokenRevoked = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_REVOKED",
		"invalid or expired token",
		"",
	)

	// ErrReplayDetected is returned when a rotated-away token is replayed
	// outside the grace window; the whole family has been revoked as a
	// side effect by the time the caller sees this.
	ErrReplayDetected = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_REPLAY_DETECTED",
		"invalid or expired token",
		"",
	)

	// ErrPasswordPolicy names the failed rule in details; this is safe,
	// user-actionable information.
	ErrPasswordPolicy = NewBaseError(
		http.StatusBadRequest,
		"PASSWORD_POLICY_VIOLATION",
		"password does not meet the password policy",
		"",
	)

	// ErrPasswordReused rejects a new password matching recent history.
	ErrPasswordReused = NewBaseError(
		http.StatusBadRequest,
		"PASSWORD_REUSED",
		"new password was used recently and cannot be reused",
		"",
	)

	ErrMfaRequired = NewBaseError(
		http.StatusUnauthorized,
		"MFA_REQUIRED",
		"multi-factor code required",
		"",
	)

	ErrMfaInvalid = NewBaseError(
		http.StatusUnauthorized,
		"MFA_INVALID",
		"invalid multi-factor code",
		"",
	)

	ErrMfaNotEnabled = NewBaseError(
		http.StatusBadRequest,
		"MFA_NOT_ENABLED",
		"multi-factor authentication is not enabled",
		"",
	)

	ErrMfaAlreadyEnabled = NewBaseError(
		http.StatusConflict,
		"MFA_ALREADY_ENABLED",
		"multi-factor authentication is already enabled",
		"",
	)

	ErrEmailTaken = NewBaseError(
		http.StatusConflict,
		"EMAIL_TAKEN",
		"this email is already registered",
		"",
	)

	ErrSessionNotFound = NewBaseError(
		http.StatusNotFound,
		"SESSION_NOT_FOUND",
		"session not found",
		"",
	)

	ErrForbidden = NewBaseError(
		http.StatusForbidden,
		"FORBIDDEN",
		"operation not permitted",
		"",
	)

	ErrNotFound = NewBaseError(
		http.StatusNotFound,
		"NOT_FOUND",
		"resource not found",
		"",
	)

	ErrValidationFailed = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"request validation failed",
		"",
	)

	ErrRateLimited = NewBaseError(
		http.StatusTooManyRequests,
		"RATE_LIMITED",
		"too many requests",
		"",
	)

	ErrInternal = NewBaseError(
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"internal server error",
		"",
	)
)

// NewDatabaseExecuteError wraps a low-level database failure as a generic
// internal error, keeping driver detail out of client responses.
func NewDatabaseExecuteError(err error, message string) error {
	return pkgerrors.Wrap(ErrInternal.WithDetails(message), err.Error())
}
