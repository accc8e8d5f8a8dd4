package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig describes an authenticated SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends codes as plain-text mail through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("delivery: smtp host and from are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPSender{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		send: smtp.SendMail,
	}, nil
}

// Deliver blocks until the relay accepts the message. smtp.SendMail has no
// context support, so ctx is only checked before dialing.
func (s *SMTPSender) Deliver(ctx context.Context, address, code string, purpose Purpose) error {
	if address == "" {
		return ErrNoRecipient
	}
	if strings.ContainsAny(address, "\r\n") {
		return fmt.Errorf("delivery: invalid recipient %q", address)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.send(s.addr, s.auth, s.cfg.From, []string{address}, s.message(address, code, purpose)); err != nil {
		return fmt.Errorf("delivery: smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, code string, purpose Purpose) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.cfg.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject(purpose) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body(code, purpose) + "\r\n")
	return []byte(b.String())
}
