// Package notify turns mail lifecycle events into channel notifications and
// fans them out to Pushover, Discord, Slack and a generic webhook.
package notify

import (
	"fmt"
	"strings"

	"github.com/mailnotify/mailnotify/internal/mail"
)

// Kind is a mail lifecycle event kind.
type Kind int

const (
	KindSent Kind = iota + 1
	KindFailed
	KindBlocked
)

// Kinds lists every event kind.
var Kinds = []Kind{KindSent, KindFailed, KindBlocked}

// String returns the capitalised name ("Sent").
func (k Kind) String() string {
	switch k {
	case KindSent:
		return "Sent"
	case KindFailed:
		return "Failed"
	case KindBlocked:
		return "Blocked"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Slug returns the lower-case name used in option keys and topics.
func (k Kind) Slug() string {
	return strings.ToLower(k.String())
}

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return KindSent, nil
	case "failed":
		return KindFailed, nil
	case "blocked":
		return KindBlocked, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// MarshalText encodes the kind as its capitalised name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any casing of a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MailError is the error detail of a Failed event.
type MailError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Event is one mail lifecycle event as delivered by the mail system.
type Event struct {
	Kind    Kind
	Title   string
	Summary string
	Mail    mail.Data
	Error   *MailError
	Reason  string
}

// Sent builds a Sent event with the default title and summary.
func Sent(data mail.Data) Event {
	return Event{Kind: KindSent, Title: "Email Sent", Summary: "An email was sent successfully.", Mail: data}
}

// Failed builds a Failed event. The summary is the error message when one
// is given.
func Failed(data mail.Data, e *MailError) Event {
	summary := "Email failed to send."
	if e != nil && e.Message != "" {
		summary = e.Message
	}
	return Event{Kind: KindFailed, Title: "Email Failed", Summary: summary, Mail: data, Error: e}
}

// Blocked builds a Blocked event.
func Blocked(data mail.Data, reason string) Event {
	return Event{Kind: KindBlocked, Title: "Email Blocked", Summary: "An outgoing email was blocked.", Mail: data, Reason: reason}
}

// New builds an event of the given kind with its default title and summary.
func New(kind Kind, data mail.Data, e *MailError, reason string) Event {
	switch kind {
	case KindFailed:
		return Failed(data, e)
	case KindBlocked:
		return Blocked(data, reason)
	default:
		return Sent(data)
	}
}
