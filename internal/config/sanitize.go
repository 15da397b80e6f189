package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError reports an option value that was rejected during Sanitize.
type FieldError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// Sanitize applies a settings patch to cur. Only recognised keys present in
// input are written. It returns the new options, the accepted keys in schema
// order and any validation errors. Rejected URLs are stored as "" and
// reported only in the errors.
func Sanitize(input map[string]any, cur Options) (Options, []string, []FieldError) {
	out := cur
	var updated []string
	var errs []FieldError
	for _, f := range out.fields() {
		v, ok := input[f.key]
		if !ok {
			continue
		}
		accepted := true
		switch f.kind {
		case kindFlag:
			*f.flag = Flag(truthy(v))
		case kindText:
			*f.text = strings.TrimSpace(textValue(v))
		case kindURL:
			s := strings.TrimSpace(textValue(v))
			if s != "" && !validURL(s) {
				errs = append(errs, FieldError{Key: f.key, Message: fmt.Sprintf("invalid URL %q", s)})
				s, accepted = "", false
			}
			*f.text = s
		case kindPriority:
			*f.num = clamp(toInt(v), -2, 2)
		case kindLength:
			n := toInt(v)
			if n < 0 {
				n = 0
			}
			*f.num = n
		}
		if accepted {
			updated = append(updated, f.key)
		}
	}
	return out, updated, errs
}

// Clean runs every value of o through Sanitize, e.g. options read from a
// config file before they are seeded into the store.
func Clean(o Options) (Options, []FieldError) {
	in := make(map[string]any)
	for _, f := range o.fields() {
		switch {
		case f.flag != nil:
			in[f.key] = bool(*f.flag)
		case f.text != nil:
			in[f.key] = *f.text
		case f.num != nil:
			in[f.key] = *f.num
		}
	}
	out, _, errs := Sanitize(in, o)
	return out, errs
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

// validURL accepts absolute http(s) URLs with a host.
func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
