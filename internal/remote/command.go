// Package remote implements the management RPC used by dashboards: health
// checks, a configuration snapshot, connection test mails and option updates.
package remote

import (
	"fmt"
	"net/mail"
	"strings"
)

// SignatureField carries the shared signature on every request.
const SignatureField = "suremail_sig"

var (
	actionKeys = []string{"mwp_action", "suremail_action", "action"}
	nestKeys   = []string{"payload", "data", "params"}
)

// Command is one parsed remote action.
type Command interface {
	Action() string
}

// Ping is a health check.
type Ping struct{}

// GetSnapshot returns connections, notification options and stats.
type GetSnapshot struct{}

// TestEmail sends one message through connection ID. To and From are
// already cleaned; From may be empty.
type TestEmail struct {
	ID   string
	To   string
	From string
}

// UpdateNotify applies a partial option update.
type UpdateNotify struct {
	Options map[string]any
}

func (Ping) Action() string         { return "ping" }
func (GetSnapshot) Action() string  { return "get_snapshot" }
func (TestEmail) Action() string    { return "test_email" }
func (UpdateNotify) Action() string { return "update_notify" }

var parsers = map[string]func(args map[string]any) Command{
	"ping":         func(map[string]any) Command { return Ping{} },
	"get_snapshot": func(map[string]any) Command { return GetSnapshot{} },
	"test_email": func(args map[string]any) Command {
		return TestEmail{
			ID:   strings.TrimSpace(str(args["id"])),
			To:   cleanEmail(str(args["to"])),
			From: cleanEmail(str(args["from"])),
		}
	},
	"update_notify": func(args map[string]any) Command {
		opts, _ := args["options"].(map[string]any)
		return UpdateNotify{Options: opts}
	},
}

// ParseCommand finds the action in post and builds its Command. The action
// is read at the top level first, then from the first nested payload, data
// or params mapping that names one; arguments are taken from the same level.
func ParseCommand(post map[string]any) (Command, bool) {
	args := post
	action := pick(post)
	if action == "" {
		for _, k := range nestKeys {
			nested, ok := post[k].(map[string]any)
			if !ok {
				continue
			}
			if action = pick(nested); action != "" {
				args = nested
				break
			}
		}
	}
	parse, ok := parsers[action]
	if !ok {
		return nil, false
	}
	return parse(args), true
}

// Signed reports whether post carries the expected signature.
func Signed(post map[string]any, signature string) bool {
	if signature == "" {
		return false
	}
	sig, _ := post[SignatureField].(string)
	return sig == signature
}

func pick(m map[string]any) string {
	for _, k := range actionKeys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// cleanEmail returns the bare address of s, or "" when s is not one.
func cleanEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return addr.Address
}
