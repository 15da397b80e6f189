package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/mail"
)

// Redaction markers.
const (
	BodyOmitted     = "[message body omitted]"
	TruncatedMarker = "… [truncated]"
)

// TimeLayout is the site-local timestamp layout of Payload.Time.
const TimeLayout = "2006-01-02 15:04:05"

// Site identifies the sending site.
type Site struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Payload is the canonical notification built once per event and shared
// read-only by every channel.
type Payload struct {
	Event   Kind            `json:"event"`
	Summary string          `json:"summary"`
	Site    Site            `json:"site"`
	Mail    mail.Normalized `json:"mail"`
	Error   *MailError      `json:"error"`
	Time    string          `json:"time"`
	Title   string          `json:"title"`
	// Message is the plain-text rendering used by the chat and push channels.
	Message string `json:"message"`
}

// BuildPayload normalizes the event's mail data, applies the redaction policy
// of opts and renders the text block. now should already be in the site's
// timezone.
func BuildPayload(ev Event, opts *config.Options, site Site, now time.Time) *Payload {
	data := ev.Mail
	if data == nil && ev.Kind == KindFailed && ev.Error != nil {
		if m, ok := ev.Error.Data.(map[string]any); ok {
			data = mail.FromAny(m)
		}
	}
	md := mail.Normalize(data)
	if ev.Reason != "" {
		if md.Extra == nil {
			md.Extra = map[string]any{}
		}
		if _, exists := md.Extra["reason"]; !exists {
			md.Extra["reason"] = ev.Reason
		}
	}
	redact(&md, opts)

	p := &Payload{
		Event:   ev.Kind,
		Summary: ev.Summary,
		Site:    site,
		Mail:    md,
		Time:    now.Format(TimeLayout),
		Title:   fmt.Sprintf("[%s] %s", site.Name, eventTitle(ev)),
	}
	if ev.Error != nil {
		e := *ev.Error
		p.Error = &e
	}
	p.Message = renderText(p)
	return p
}

func eventTitle(ev Event) string {
	if ev.Title != "" {
		return ev.Title
	}
	return "Email " + ev.Kind.String()
}

func redact(md *mail.Normalized, opts *config.Options) {
	if !opts.IncludeHeaders {
		md.Headers = nil
		md.HeadersOmitted = true
	}
	if !opts.IncludeBody {
		md.Message = strPtr(BodyOmitted)
		return
	}
	if md.Message == nil || opts.TruncateBodyLen <= 0 {
		return
	}
	if msg := *md.Message; utf8.RuneCountInString(msg) > opts.TruncateBodyLen {
		md.Message = strPtr(string([]rune(msg)[:opts.TruncateBodyLen]) + TruncatedMarker)
	}
}

// renderText composes the multi-section text block. Sections without data
// are left out.
func renderText(p *Payload) string {
	lines := []string{
		p.Summary,
		fmt.Sprintf("Site: %s (%s)", p.Site.Name, p.Site.URL),
		"When: " + p.Time,
	}
	if to := p.Mail.ToString(); to != "" {
		lines = append(lines, "To: "+to)
	}
	if p.Mail.Subject != "" {
		lines = append(lines, "Subject: "+p.Mail.Subject)
	}
	if p.Mail.Message != nil {
		lines = append(lines, "", "Body:", *p.Mail.Message)
	}
	if p.Mail.Headers != nil && *p.Mail.Headers != "" {
		lines = append(lines, "", "Headers:", *p.Mail.Headers)
	}
	if p.Mail.Attachments != nil && *p.Mail.Attachments != "" {
		lines = append(lines, "", "Attachments: "+*p.Mail.Attachments)
	}
	if p.Error != nil {
		lines = append(lines, "", "Error:")
		if p.Error.Code != "" {
			lines = append(lines, "Code: "+p.Error.Code)
		}
		if p.Error.Message != "" {
			lines = append(lines, "Message: "+p.Error.Message)
		}
		if !isEmpty(p.Error.Data) {
			lines = append(lines, "Data: "+encodeData(p.Error.Data))
		}
	}
	return strings.Join(lines, "\n")
}

func encodeData(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// isEmpty reports whether v carries no data: nil, zero scalars and empty
// strings, maps or slices.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

// Truncate shortens text to at most limit runes, replacing the last kept
// rune with an ellipsis when it had to cut.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit-1]) + "…"
}

func strPtr(s string) *string { return &s }
