package mailer

import (
	"context"

	"github.com/Varun5711/gatekeeper/internal/logger"
)

// LogSender writes outbound mail to the service log instead of
// delivering it. Used when no SMTP host is configured (local dev).
type LogSender struct {
	log *logger.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.New("mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info("mail (not delivered) to=%s subject=%q body=%q", msg.To, msg.Subject, msg.Body)
	return nil
}
