package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
)

// DispatchTimeout bounds every outbound channel request.
const DispatchTimeout = 8 * time.Second

// Channel renders a payload into one outbound request. Render is pure; it
// returns false when the channel's preconditions (credentials, URL) are not
// met and the dispatch must be skipped.
type Channel interface {
	Name() config.ChannelName
	Render(p *Payload, opts *config.Options) (*Request, bool)
}

// Request is a rendered outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Send performs req. Transport errors and non-2xx responses are returned;
// the response body is discarded.
func Send(ctx context.Context, client *http.Client, req *Request) error {
	ctx, cancel := context.WithTimeout(ctx, DispatchTimeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if client == nil {
		client = &http.Client{Timeout: DispatchTimeout}
	}
	resp, err := client.Do(hr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}

// jsonRequest is a shared helper used by the JSON channels.
func jsonRequest(url string, data any) (*Request, bool) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, false
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=UTF-8")
	return &Request{Method: http.MethodPost, URL: url, Header: h, Body: bytes.TrimRight(buf.Bytes(), "\n")}, true
}
