// Package mail renders and delivers the emails of the login and email
// change flows.
package mail

import (
	"context"

	"github.com/signalix/emailauth/internal/logging"
)

// Sender delivers one HTML email
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender writes messages to the log instead of sending them. The body is
// logged at debug level since it carries the pass-code.
type LogSender struct {
	logger logging.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.logger.Info(ctx, "email not sent, log provider", "to", logging.MaskEmail(to), "subject", subject)
	s.logger.Debug(ctx, "email body", "to", to, "body", htmlBody)
	return nil
}
