package mail

import (
	"regexp"
	"sort"
	"strings"
)

// Header is one normalized header entry. An empty Key marks a bare line that
// carried no colon.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list. Keyed entries are unique by key.
type Headers []Header

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// NormalizeHeaders coerces a raw header block, a header map or a list of
// header lines into Headers. It never fails; unusable input yields an empty
// or partial result.
func NormalizeHeaders(input any) Headers {
	switch t := input.(type) {
	case nil:
		return Headers{}
	case Headers:
		return t
	case string:
		return fromLines(lineBreak.Split(t, -1))
	case []string:
		return fromLines(t)
	case []any:
		lines := make([]string, 0, len(t))
		for _, v := range t {
			lines = append(lines, stringify(v))
		}
		return fromLines(lines)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return fromMap(m)
	case map[string][]string:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return fromMap(m)
	case map[string]any:
		return fromMap(t)
	case Fields:
		return fromMap(t)
	default:
		return fromLines([]string{stringify(input)})
	}
}

func fromLines(lines []string) Headers {
	var h Headers
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if p := strings.IndexByte(line, ':'); p >= 0 {
			h = h.set(strings.TrimSpace(line[:p]), strings.TrimSpace(line[p+1:]))
			continue
		}
		h = append(h, Header{Value: line})
	}
	if h == nil {
		return Headers{}
	}
	return h
}

func fromMap(m map[string]any) Headers {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := make(Headers, 0, len(keys))
	for _, k := range keys {
		var val string
		switch v := m[k].(type) {
		case []string, []any:
			val = strings.Join(stringList(v), ",")
		default:
			val = stringify(v)
		}
		h = h.set(strings.TrimSpace(k), strings.TrimSpace(val))
	}
	return h
}

// set replaces the value of an existing keyed entry in place or appends a new
// one.
func (h Headers) set(key, value string) Headers {
	for i := range h {
		if h[i].Key != "" && h[i].Key == key {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Key: key, Value: value})
}

// Get returns the value of the first entry whose key matches
// case-insensitively.
func (h Headers) Get(key string) (string, bool) {
	for _, e := range h {
		if e.Key != "" && strings.EqualFold(e.Key, key) {
			return e.Value, true
		}
	}
	return "", false
}

// Map returns the keyed entries as a map. Bare entries are dropped.
func (h Headers) Map() map[string]string {
	out := make(map[string]string, len(h))
	for _, e := range h {
		if e.Key != "" {
			out[e.Key] = e.Value
		}
	}
	return out
}

// Lines renders each entry as "Key: Value", or the bare value.
func (h Headers) Lines() []string {
	out := make([]string, 0, len(h))
	for _, e := range h {
		if e.Key == "" {
			out = append(out, e.Value)
			continue
		}
		out = append(out, e.Key+": "+e.Value)
	}
	return out
}

// String joins Lines with newlines.
func (h Headers) String() string {
	return strings.Join(h.Lines(), "\n")
}
