package notify

import (
	"context"
	"sync"

	"github.com/moneymapper/authcore/pkg/logger"
)

type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
	KindTwoFactorEnabled  Kind = "two_factor_enabled"
	KindSuspiciousLogin   Kind = "suspicious_activity"
)

type Message struct {
	Kind    Kind
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers one rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records that a message would have been sent. Bodies carry
// single-use tokens and are never written out.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logger.Info("email_sent", map[string]interface{}{
		"kind":    msg.Kind,
		"to":      logger.MaskIdentifier(msg.To),
		"subject": msg.Subject,
	})
	return nil
}

// RecordingMailer keeps delivered messages in memory.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (m *RecordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *RecordingMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent message of the given kind sent to addr.
func (m *RecordingMailer) Last(kind Kind, addr string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind && m.sent[i].To == addr {
			return m.sent[i], true
		}
	}
	return Message{}, false
}
