package email

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// LogSender records messages instead of delivering them. It is used when
// SMTP is disabled and in tests.
type LogSender struct {
	mu   sync.Mutex
	sent []*Message
	// Err, when set, is returned from every Send.
	Err error
}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	log.Info().
		Str("from", msg.From.Email).
		Strs("to", msg.To).
		Strs("cc", msg.CC).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("smtp disabled, email logged")
	return nil
}

// Sent returns the messages recorded so far.
func (s *LogSender) Sent() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.sent...)
}
