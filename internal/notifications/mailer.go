package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailerConfig configures the SMTP-backed mailer.
type SMTPMailerConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	// From is the sender address stamped on outgoing mail.
	From string
	// SendMail overrides the transport, used by tests.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SMTPMailer sends mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs an SMTPMailer from the given configuration.
func NewSMTPMailer(cfg SMTPMailerConfig) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp mailer: host is required")
	}
	port := strings.TrimSpace(cfg.Port)
	if port == "" {
		port = "587"
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("smtp mailer: from address is required")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	send := cfg.SendMail
	if send == nil {
		send = smtp.SendMail
	}

	return &SMTPMailer{
		addr:     host + ":" + port,
		auth:     auth,
		from:     from,
		sendMail: send,
	}, nil
}

// Send delivers the message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if m == nil {
		return errors.New("smtp mailer: not initialised")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("smtp mailer: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	if err := m.sendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp mailer: send to %s: %w", to, err)
	}
	return nil
}
