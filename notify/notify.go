// Package notify sends outbound messages to users.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Mailer delivers one email. It reports success and never fails the caller.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// LogMailer writes emails to the log instead of an SMTP relay.
type LogMailer struct {
	logger *zap.SugaredLogger
}

func NewLogMailer(logger *zap.SugaredLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) bool {
	if strings.TrimSpace(to) == "" {
		m.logger.Debugw("email skipped, no recipient", "subject", subject)
		return false
	}
	m.logger.Infow("email sent", "to", to, "subject", subject, "body_bytes", len(body))
	return true
}
