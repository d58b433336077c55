package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidHeader is returned for addresses or subjects carrying line breaks.
var ErrInvalidHeader = errors.New("mail header contains line break")

// Message is an outgoing HTML email.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

func (m Message) validate() error {
	for _, v := range []string{m.From, m.To, m.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return ErrInvalidHeader
		}
	}
	if m.To == "" {
		return errors.New("mail recipient required")
	}
	return nil
}

// Sender delivers a message or returns why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a Sender for environments without an SMTP relay.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("mail not sent; no smtp relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTMLBody)))
	return nil
}
