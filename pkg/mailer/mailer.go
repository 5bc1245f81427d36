// Package mailer delivers the rendered digest over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when sender, credential or recipients are missing
var ErrNotConfigured = errors.New("mailer: sender, password and recipients are required")

// Config holds the SMTP settings
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Timeout    time.Duration
}

// Mailer sends one HTML message per call. There is no retry.
type Mailer struct {
	cfg  Config
	send func(ctx context.Context, msg *mail.Msg) error
}

// New creates a mailer dialing cfg.Host with STARTTLS and PLAIN auth
func New(cfg Config) *Mailer {
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Mailer{cfg: cfg}
	m.send = m.dialAndSend
	return m
}

// Configured reports whether Send can attempt delivery
func (m *Mailer) Configured() bool {
	return m.cfg.From != "" && m.cfg.Password != "" && len(m.cfg.Recipients) > 0
}

// Send delivers htmlBody to every recipient
func (m *Mailer) Send(ctx context.Context, subject, htmlBody string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	msg, err := m.message(subject, htmlBody)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

func (m *Mailer) message(subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(m.cfg.Recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
