// Package notify delivers incident notifications over email and SMS
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/utils"
)

// Message is one rendered notification for one channel
type Message struct {
	Channel string
	To      string
	Subject string
	Body    string
}

// Sender delivers messages on a single channel
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. It stands
// in for channels whose transport is not configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the message
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("Notification not delivered, transport not configured",
		zap.String("channel", msg.Channel),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("preview", utils.TruncateText(msg.Body, 100)))
	return nil
}

// NormalizePhone strips formatting from a phone number and adds a +1 country
// code when none is present
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phone {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+1" + cleaned
	}
	return cleaned
}
