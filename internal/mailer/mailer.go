// Package mailer sends plain-text messages through the outbound connections
// listed in the configuration.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
)

// Message is a single text/plain mail.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
}

// Sender delivers messages through one connection.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Factory builds the Sender for a connection.
type Factory func(ctx context.Context, conn config.Connection) (Sender, error)

// ForConnection is the default Factory.
func ForConnection(ctx context.Context, conn config.Connection) (Sender, error) {
	switch strings.ToLower(conn.Type) {
	case "ses":
		return NewSES(ctx, conn)
	case "smtp":
		return NewSMTP(conn), nil
	default:
		return nil, fmt.Errorf("connection %q: unsupported type %q", conn.ID, conn.Type)
	}
}

// TestInfo is what a test message reports about where it came from.
type TestInfo struct {
	SiteName string
	SiteURL  string
	Timezone string
	Now      time.Time
}

// TestMessage builds the connection test mail. from overrides the
// connection's From address when set.
func TestMessage(conn config.Connection, to, from string, info TestInfo) *Message {
	if from == "" {
		from = conn.FromEmail
	}
	name := conn.FromName
	if name == "" {
		name = info.SiteName
	}
	title := " (none)"
	if conn.Title != "" {
		title = " " + conn.Title
	}
	when := info.Now.Format("2006-01-02 15:04:05")
	if info.Timezone != "" {
		when += " (" + info.Timezone + ")"
	}
	body := strings.Join([]string{
		"This is a test email sent to verify your email connection with mailnotify using your management dashboard.",
		"If you're receiving this message, your setup is working correctly!",
		"",
		"Connection",
		"  ID:              " + conn.ID,
		"  From Email:      " + conn.FromEmail,
		"  Connection Type: " + conn.Type,
		"  Connection Title:" + title,
		"",
		"Sent From",
		"  Site Name:       " + info.SiteName,
		"  Site URL:        " + info.SiteURL,
		"  Date & Time:     " + when,
	}, "\n")
	return &Message{
		From:     from,
		FromName: name,
		To:       []string{to},
		Subject:  "Mailnotify connection test — " + info.SiteName,
		Body:     body,
	}
}

func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%q <%s>", name, addr)
}
