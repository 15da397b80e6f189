package mailer

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/mailnotify/mailnotify/internal/config"
)

// sendMailHook allows tests to override SMTP sending behavior.
var sendMailHook = smtp.SendMail

// SMTP sends through an SMTP relay, with PLAIN auth when a username is set.
type SMTP struct {
	Host, User, Pass string
	Port             int
}

// NewSMTP builds an SMTP sender for the connection. Port defaults to 587.
func NewSMTP(conn config.Connection) *SMTP {
	port := conn.Port
	if port == 0 {
		port = 587
	}
	return &SMTP{Host: conn.Host, Port: port, User: conn.Username, Pass: conn.Password}
}

// Name returns "smtp".
func (s *SMTP) Name() string { return "smtp" }

// Send delivers msg. net/smtp has no context support; ctx is only checked
// before dialing.
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	header := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n",
		formatFrom(msg.FromName, msg.From),
		strings.Join(msg.To, ","),
		mime.QEncoding.Encode("UTF-8", msg.Subject),
	)
	body := header + strings.ReplaceAll(msg.Body, "\n", "\r\n")
	if err := sendMailHook(addr, auth, msg.From, msg.To, []byte(body)); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	return nil
}
