// Package automation publishes an automation-friendly copy of every mail
// event to a per-event Kafka topic, for workflow tools that trigger on them.
package automation

import (
	"strings"
	"time"

	"github.com/mailnotify/mailnotify/internal/mail"
	"github.com/mailnotify/mailnotify/internal/notify"
)

// ConnectionHeader carries the outbound connection ID stamped by the mail
// system.
const ConnectionHeader = "X-SureMail-Connection"

// Meta is the site and time information attached to every payload.
type Meta struct {
	SiteName string
	SiteURL  string
	Timezone string
	Now      time.Time
}

// BuildPayload renders ev as a flat automation payload. Unlike notification
// payloads it is never redacted or truncated.
func BuildPayload(ev notify.Event, meta Meta) map[string]any {
	fields := mailFields(ev)
	headers := mail.NormalizeHeaders(fields["headers"]).Map()

	p := map[string]any{
		"event":         ev.Kind.Slug(),
		"to":            recipients(fields["to"]),
		"subject":       text(fields["subject"]),
		"message":       text(fields["message"]),
		"headers":       headers,
		"attachments":   attachments(fields["attachments"]),
		"connection_id": strings.TrimSpace(headers[ConnectionHeader]),
		"site_name":     meta.SiteName,
		"site_url":      meta.SiteURL,
		"timestamp":     meta.Now.Format(notify.TimeLayout),
		"timezone":      meta.Timezone,
	}
	switch ev.Kind {
	case notify.KindFailed:
		p["error_code"], p["error_message"] = "", ""
		if ev.Error != nil {
			p["error_code"] = ev.Error.Code
			p["error_message"] = ev.Error.Message
		}
		p["phpmailer_exception_code"] = text(fields["phpmailer_exception_code"])
	case notify.KindBlocked:
		p["reason"] = ev.Reason
	}
	return p
}

// mailFields returns the raw mail mapping, falling back to the error detail
// of a Failed event.
func mailFields(ev notify.Event) mail.Fields {
	if f, ok := ev.Mail.(mail.Fields); ok {
		return f
	}
	if ev.Kind == notify.KindFailed && ev.Error != nil {
		if m, ok := ev.Error.Data.(map[string]any); ok {
			return mail.Fields(m)
		}
	}
	if t, ok := ev.Mail.(mail.Text); ok {
		return mail.Fields{"message": string(t)}
	}
	return mail.Fields{}
}

func recipients(v any) []string {
	var parts []string
	switch t := v.(type) {
	case nil:
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []any:
		for _, item := range t {
			parts = append(parts, text(item))
		}
	default:
		parts = []string{text(t)}
	}
	out := []string{}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func attachments(v any) any {
	if v == nil {
		return []any{}
	}
	return v
}

func text(v any) string { return mail.String(v) }
