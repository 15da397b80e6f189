// Package mail turns the loosely shaped mail data handed over by the host
// mail system into a canonical form.
package mail

import (
	"fmt"
	"strconv"
)

// Data is the raw mail data attached to an event. It is one of Fields, Text
// or Opaque; a nil Data means no mail data was supplied.
type Data interface {
	mailData()
}

// Fields is mail data supplied as a mapping (to, subject, message, headers,
// attachments and any extension keys).
type Fields map[string]any

// Text is mail data supplied as a bare string; it becomes the message body.
type Text string

// Opaque wraps any other value. It is preserved under the "raw" key.
type Opaque struct {
	Value any
}

func (Fields) mailData() {}
func (Text) mailData()   {}
func (Opaque) mailData() {}

// FromAny converts a decoded JSON value into Data.
func FromAny(v any) Data {
	switch t := v.(type) {
	case nil:
		return nil
	case Data:
		return t
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
		return Fields(t)
	case map[string]string:
		if len(t) == 0 {
			return nil
		}
		f := make(Fields, len(t))
		for k, s := range t {
			f[k] = s
		}
		return f
	case string:
		if t == "" {
			return nil
		}
		return Text(t)
	default:
		return Opaque{Value: v}
	}
}

// String formats a scalar mail value as text. true renders as "1" and false
// as "".
func String(v any) string { return stringify(v) }

// stringify formats a scalar the way the host renders it in text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// stringList flattens a list-like value into strings; scalars yield a
// single element.
func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}
