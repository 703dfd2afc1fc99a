// Package context carries request-scoped values (request ID, logger)
// between the delivery layer and the usecases.
package context

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyLogger    contextKey = "logger"

	// HeaderXRequestID is the header the request ID propagates through.
	HeaderXRequestID = "X-Request-Id"
)

// GetRequestID returns the request ID stored on the echo context, minting
// a fresh one when the middleware has not run.
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(string(keyRequestID)).(string); ok && id != "" {
		return id
	}

	return uuid.New().String()
}

// SetRequestID stores the request ID on the echo context.
func SetRequestID(c echo.Context, requestID string) {
	c.Set(string(keyRequestID), requestID)
}

// WithRequestID returns a context carrying the request ID, so usecases
// can stamp it onto audit events without touching echo.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// GetRequestIDFromContext returns the request ID from a standard context,
// or "" outside a request.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(keyRequestID).(string); ok {
		return id
	}

	return ""
}

// WithLogger returns a context carrying a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, keyLogger, logger)
}

// GetLoggerOrDefault returns the request-scoped logger, or the fallback
// when called outside a request.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(keyLogger).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return fallback
}
