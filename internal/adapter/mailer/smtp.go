// Package mailer provides MessageSender implementations: plain SMTP for
// local relays and test inboxes, and AWS SES for production delivery.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"dripmail/internal/config/configs"
)

// sendMailFunc matches smtp.SendMail; swapped out in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers messages over SMTP with optional PLAIN auth.
type SMTPSender struct {
	cfg      configs.SMTP
	logger   *slog.Logger
	sendMail sendMailFunc
}

// NewSMTPSender returns a sender using the given SMTP configuration.
func NewSMTPSender(cfg configs.SMTP, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger, sendMail: smtp.SendMail}
}

// Send delivers one plain-text message and returns the generated
// Message-ID. Any transport error is returned as-is for the caller's
// retry policy to judge.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("smtp: recipient required")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.sendMail(s.cfg.Addr(), auth, s.cfg.From, []string{to}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Debug("smtp message delivered",
		slog.String("to", to),
		slog.String("message_id", messageID))
	return messageID, nil
}
