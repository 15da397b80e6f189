package remote

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/mailnotify/mailnotify/internal/logging"
)

const maxRequestBytes = 1 << 20

// Handler serves POST /remote. Bodies are JSON objects or forms; form keys
// use bracket nesting, e.g. options[include_body]=1.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		post, err := readPost(r)
		if err != nil {
			logging.Get().Warn().Err(err).Msg("unreadable remote request")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.Execute(r.Context(), post, nil))
	})
}

func readPost(r *http.Request) (map[string]any, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		post := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
			return nil, err
		}
		return post, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return formToMap(r.PostForm), nil
}

// formToMap expands bracketed form keys into nested maps. Keys ending in []
// collect every value into a list; otherwise the first value wins.
func formToMap(vals url.Values) map[string]any {
	out := map[string]any{}
	for key, vs := range vals {
		if len(vs) == 0 {
			continue
		}
		path := splitKey(key)
		if len(path) == 0 {
			continue
		}
		var leaf any = vs[0]
		if path[len(path)-1] == "" {
			path = path[:len(path)-1]
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			leaf = list
		}
		if len(path) == 0 {
			continue
		}
		m := out
		for _, p := range path[:len(path)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[path[len(path)-1]] = leaf
	}
	return out
}

// splitKey turns "a[b][c]" into [a b c] and "a[]" into [a ""].
func splitKey(key string) []string {
	i := strings.IndexByte(key, '[')
	if i <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}
	path := []string{key[:i]}
	rest := key[i:]
	for rest != "" {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
