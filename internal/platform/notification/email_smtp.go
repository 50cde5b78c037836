package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPEmailSender delivers emails through a plain SMTP relay.
type SMTPEmailSender struct {
	addr     string // host:port
	from     string
	username string
	password string
}

// NewSMTPEmailSender creates an email sender. Authentication is used only
// when username is non-empty.
func NewSMTPEmailSender(addr, from, username, password string) *SMTPEmailSender {
	return &SMTPEmailSender{addr: addr, from: from, username: username, password: password}
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}
	if err := smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
