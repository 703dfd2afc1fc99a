// Package notification delivers outbound user-facing messages: email
// verification links, password reset and account recovery challenges.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"keygate/config"
	"keygate/internal/domain/service"

	"github.com/pkg/errors"
)

// smtpMailer implements service.Mailer over plain SMTP with AUTH.
type smtpMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer is the constructor for smtpMailer. When no SMTP host is
// configured it returns a logging no-op mailer so development environments
// work without a mail relay.
func NewSMTPMailer(cfg *config.Config, logger *slog.Logger) service.Mailer {
	if cfg.SMTP == nil || cfg.SMTP.Host == "" {
		return &logMailer{logger: logger}
	}

	return &smtpMailer{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
		from:     cfg.SMTP.From,
	}
}

// Send delivers one message. The context deadline is not honored by
// net/smtp's SendMail; callers should treat mail as best-effort.
func (m *smtpMailer) Send(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return errors.Wrap(err, "failed to send mail")
	}

	return nil
}

// logMailer records outbound messages instead of delivering them.
type logMailer struct {
	logger *slog.Logger
}

func (m *logMailer) Send(ctx context.Context, to, subject, _ string) error {
	if m.logger != nil {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "mail delivery skipped, no SMTP host configured",
			slog.String("to", to),
			slog.String("subject", subject),
		)
	}

	return nil
}
