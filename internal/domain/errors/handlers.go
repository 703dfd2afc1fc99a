package errors

// ErrorInfo contains detailed error information for API responses.
type ErrorInfo struct {
	Code    string `json:"code"`              // Business error code, e.g. "ACCOUNT_LOCKED"
	Message string `json:"message"`           // User-facing error message
	Details any    `json:"details,omitempty"` // Detailed error information (optional)
}

// Response is the unified envelope rendered by the HTTP error middleware.
type Response struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Error   *ErrorInfo `json:"error,omitempty"`
}
