package mail

import (
	"encoding/json"
	"strings"
)

// Canonical field names.
const (
	FieldTo          = "to"
	FieldSubject     = "subject"
	FieldMessage     = "message"
	FieldHeaders     = "headers"
	FieldAttachments = "attachments"

	// FieldRaw holds Opaque mail data.
	FieldRaw = "raw"
)

var fixedFields = map[string]struct{}{
	FieldTo:          {},
	FieldSubject:     {},
	FieldMessage:     {},
	FieldHeaders:     {},
	FieldAttachments: {},
}

// Normalized is the canonical mail shape used by the notification payload.
// Message, Headers and Attachments are nil when absent.
type Normalized struct {
	To          []string
	Subject     string
	Message     *string
	Headers     *string
	Attachments *string
	// Extra carries every other key of the raw mapping, verbatim.
	Extra map[string]any
	// HeadersOmitted is set when policy removed the headers field; the
	// field is then left out of the JSON form altogether.
	HeadersOmitted bool
}

// Normalize derives the canonical mail fields from raw mail data.
func Normalize(d Data) Normalized {
	var n Normalized
	switch t := d.(type) {
	case nil:
	case Text:
		n.Message = ptr(string(t))
	case Opaque:
		n.Extra = map[string]any{FieldRaw: t.Value}
	case Fields:
		n.fromFields(t)
	}
	return n
}

func (n *Normalized) fromFields(f Fields) {
	if v, ok := f[FieldTo]; ok && v != nil {
		n.To = splitAddresses(v)
	}
	if v, ok := f[FieldSubject]; ok && v != nil {
		n.Subject = stringify(v)
	}
	if v, ok := f[FieldMessage]; ok && v != nil {
		n.Message = ptr(stringify(v))
	}
	if v, ok := f[FieldHeaders]; ok && v != nil {
		if s, isString := v.(string); isString {
			n.Headers = ptr(s)
		} else {
			n.Headers = ptr(NormalizeHeaders(v).String())
		}
	}
	if v, ok := f[FieldAttachments]; ok && v != nil {
		switch v.(type) {
		case []string, []any:
			n.Attachments = ptr(strings.Join(stringList(v), ", "))
		default:
			n.Attachments = ptr(stringify(v))
		}
	}
	for k, v := range f {
		if _, fixed := fixedFields[k]; fixed {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]any)
		}
		n.Extra[k] = v
	}
}

func splitAddresses(v any) []string {
	var parts []string
	if s, ok := v.(string); ok {
		parts = strings.Split(s, ",")
	} else {
		parts = stringList(v)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToString joins recipients with ", ".
func (n Normalized) ToString() string {
	return strings.Join(n.To, ", ")
}

// Clone returns a copy that shares no mutable state with n.
func (n Normalized) Clone() Normalized {
	c := n
	if n.To != nil {
		c.To = append([]string(nil), n.To...)
	}
	if n.Extra != nil {
		c.Extra = make(map[string]any, len(n.Extra))
		for k, v := range n.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// MarshalJSON emits the fixed fields (null when absent) followed by the
// pass-through fields.
func (n Normalized) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Extra)+5)
	for k, v := range n.Extra {
		out[k] = v
	}
	out[FieldTo] = nullIfEmpty(n.ToString())
	out[FieldSubject] = nullIfEmpty(n.Subject)
	out[FieldMessage] = n.Message
	out[FieldAttachments] = n.Attachments
	if n.HeadersOmitted {
		delete(out, FieldHeaders)
	} else {
		out[FieldHeaders] = n.Headers
	}
	return json.Marshal(out)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptr(s string) *string { return &s }
