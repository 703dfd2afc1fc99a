package service

import "context"

// Mailer is the fire-and-forget side channel for verification, reset and
// recovery tokens. Delivery failure must never block token issuance;
// callers log and move on.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
