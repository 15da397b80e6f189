// Package ingest receives mail lifecycle events from the mail system over
// HTTP, Kafka or MQTT and hands them to a Handler.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mailnotify/mailnotify/internal/mail"
	"github.com/mailnotify/mailnotify/internal/notify"
)

// ErrInvalidEvent is returned for input that cannot be decoded into an event.
var ErrInvalidEvent = errors.New("invalid mail event")

// Handler consumes one decoded event.
type Handler func(ctx context.Context, ev notify.Event) error

type errorBody struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// envelope is the wire form shared by every source. "event" is accepted as
// an alias of "kind".
type envelope struct {
	Kind    string     `json:"kind"`
	Event   string     `json:"event"`
	Title   string     `json:"title"`
	Summary string     `json:"summary"`
	Mail    any        `json:"mail"`
	Error   *errorBody `json:"error"`
	Reason  string     `json:"reason"`
}

// Decode parses one JSON event.
func Decode(b []byte) (notify.Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return notify.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	name := env.Kind
	if name == "" {
		name = env.Event
	}
	kind, err := notify.ParseKind(name)
	if err != nil {
		return notify.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	data, reason := env.Mail, env.Reason
	if kind == notify.KindBlocked {
		data, reason = unwrapBlocked(data, reason)
	}

	var mailErr *notify.MailError
	if kind == notify.KindFailed && env.Error != nil {
		mailErr = &notify.MailError{Message: env.Error.Message, Data: env.Error.Data}
		if env.Error.Code != nil {
			mailErr.Code = fmt.Sprint(env.Error.Code)
		}
	}

	ev := notify.New(kind, mail.FromAny(data), mailErr, reason)
	if t := strings.TrimSpace(env.Title); t != "" {
		ev.Title = t
	}
	if s := strings.TrimSpace(env.Summary); s != "" {
		ev.Summary = s
	}
	return ev, nil
}

// unwrapBlocked lifts {reason, mail:{...}} mail data into its parts.
func unwrapBlocked(data any, reason string) (any, string) {
	m, ok := data.(map[string]any)
	if !ok {
		return data, reason
	}
	inner, ok := m["mail"].(map[string]any)
	if !ok {
		return data, reason
	}
	for k := range m {
		if k != "mail" && k != "reason" {
			return data, reason
		}
	}
	if reason == "" {
		if r, ok := m["reason"].(string); ok {
			reason = r
		}
	}
	return inner, reason
}
