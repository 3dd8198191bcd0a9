// Package notify renders account e-mails and delivers them off the request
// path.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/workqueue"
	"github.com/moneymapper/authcore/pkg/logger"
)

const sendTimeout = 30 * time.Second

type Options struct {
	From      string
	BaseURL   string
	QueueSize int
	Workers   int
	Clock     func() time.Time
}

// Dispatcher queues notices for a Mailer. Delivery failures are logged
// and counted, never returned to the caller.
type Dispatcher struct {
	mailer  Mailer
	from    string
	baseURL string
	now     func() time.Time
	pool    *workqueue.Pool[Message]
}

func NewDispatcher(mailer Mailer, opts Options) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 200
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.From == "" {
		opts.From = "noreply@moneymapper.local"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	d := &Dispatcher{
		mailer:  mailer,
		from:    opts.From,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		now:     opts.Clock,
	}
	d.pool = workqueue.New("notify", opts.Workers, opts.QueueSize, d.deliver)
	return d
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.mailer.Send(ctx, msg); err != nil {
		metrics.Notifications.WithLabelValues(string(msg.Kind), "failed").Inc()
		logger.Error("email_send_failed", err, map[string]interface{}{
			"kind": msg.Kind,
			"to":   logger.MaskIdentifier(msg.To),
		})
		return
	}
	metrics.Notifications.WithLabelValues(string(msg.Kind), "sent").Inc()
}

func (d *Dispatcher) enqueue(msg Message) {
	if msg.To == "" {
		return
	}
	msg.From = d.from
	if !d.pool.Submit(msg.To, msg) {
		metrics.Notifications.WithLabelValues(string(msg.Kind), "dropped").Inc()
	}
}

func (d *Dispatcher) link(path, token string) string {
	return d.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (d *Dispatcher) SendEmailVerification(to, token, username string) {
	d.enqueue(Message{
		Kind:    KindEmailVerification,
		To:      to,
		Subject: "Verify Your MoneyMapper Account",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Thank you for registering with MoneyMapper.\n\n"+
			"Verify your email address here:\n%s\n\n"+
			"This link expires in 24 hours. If you did not create this account, ignore this email.\n\n"+
			"The MoneyMapper Team",
			username, d.link("/verify-email", token)),
	})
}

func (d *Dispatcher) SendPasswordReset(to, token, username string) {
	d.enqueue(Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Reset Your MoneyMapper Password",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"A password reset was requested for your MoneyMapper account.\n\n"+
			"Choose a new password here:\n%s\n\n"+
			"This link expires in 1 hour. If you did not request it, your password stays unchanged.\n\n"+
			"The MoneyMapper Team",
			username, d.link("/reset-password", token)),
	})
}

func (d *Dispatcher) SendPasswordChanged(to, username string) {
	d.enqueue(Message{
		Kind:    KindPasswordChanged,
		To:      to,
		Subject: "MoneyMapper Password Changed",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Your MoneyMapper password was changed and all existing sessions were signed out.\n\n"+
			"If you did not make this change, contact support immediately.\n\n"+
			"The MoneyMapper Team",
			username),
	})
}

func (d *Dispatcher) SendTwoFactorEnabled(to, username string) {
	d.enqueue(Message{
		Kind:    KindTwoFactorEnabled,
		To:      to,
		Subject: "MoneyMapper Two-Factor Authentication Enabled",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Two-factor authentication is now enabled on your MoneyMapper account.\n"+
			"You will need your authenticator app to sign in.\n\n"+
			"If you did not enable it, contact support immediately.\n\n"+
			"The MoneyMapper Security Team",
			username),
	})
}

func (d *Dispatcher) SendSuspiciousActivity(to, username, ip, userAgent string) {
	d.enqueue(Message{
		Kind:    KindSuspiciousLogin,
		To:      to,
		Subject: "MoneyMapper Security Alert",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"We noticed unusual sign-in activity on your MoneyMapper account.\n\n"+
			"IP address: %s\nUser agent: %s\nTime: %s\n\n"+
			"If this was not you, reset your password and contact support.\n\n"+
			"The MoneyMapper Security Team",
			username, ip, userAgent, d.now().UTC().Format(time.RFC1123)),
	})
}

// Flush waits for queued messages to be handed to the mailer.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.pool.Flush(ctx)
}

func (d *Dispatcher) Close(ctx context.Context) error {
	return d.pool.Close(ctx)
}
