package service

import (
	"context"
	"time"
)

// Security event types published for audit.
const (
	EventLoginSucceeded  = "login_succeeded"
	EventLoginFailed     = "login_failed"
	EventAccountLocked   = "account_locked"
	EventReplayDetected  = "token_replay_detected"
	EventPasswordChanged = "password_changed"
	EventPasswordReset   = "password_reset"
	EventAccountRecovery = "account_recovered"
	EventMfaEnabled      = "mfa_enabled"
	EventMfaDisabled     = "mfa_disabled"
	EventSessionRevoked  = "session_revoked"
)

// SecurityEvent is one audit record. Full detail that is normalized away
// from client responses (which credential failed, which family was
// poisoned) is retained here.
type SecurityEvent struct {
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	RequestID string            `json:"request_id,omitempty"` // For distributed tracing
	At        time.Time         `json:"at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventPublisher publishes security events to a message queue for audit
// consumers. Publishing is best-effort; failures are logged, never surfaced.
type EventPublisher interface {
	// PublishSecurityEvent publishes one audit event for async processing.
	PublishSecurityEvent(ctx context.Context, event *SecurityEvent) error

	// Close releases any resources held by the publisher.
	Close() error
}
