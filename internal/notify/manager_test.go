package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/mail"
	"github.com/mailnotify/mailnotify/internal/metrics"
	"github.com/mailnotify/mailnotify/internal/state"
)

func decodeJSON(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("invalid payload: %v (%s)", err, b)
	}
	return out
}

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
	paths  []string
	status int
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, b)
	c.paths = append(c.paths, r.URL.Path)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func newCapture(t *testing.T) (*capture, *httptest.Server) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	t.Cleanup(srv.Close)
	return c, srv
}

func newTestManager(t *testing.T, opts config.Options) *Manager {
	t.Helper()
	store := state.NewMemoryStore()
	if err := config.SaveOptions(context.Background(), store, opts); err != nil {
		t.Fatalf("save options: %v", err)
	}
	m := NewManager(store, testSite, time.UTC)
	m.now = func() time.Time { return testNow }
	return m
}

func withPushoverURL(t *testing.T, u string) {
	t.Helper()
	old := pushoverAPIURL
	pushoverAPIURL = u
	t.Cleanup(func() { pushoverAPIURL = old })
}

func TestWantsEventTruthTable(t *testing.T) {
	for _, ch := range config.Channels {
		for _, kind := range Kinds {
			for _, enabled := range []bool{false, true} {
				for _, routed := range []bool{false, true} {
					opts := config.DefaultOptions()
					in := map[string]any{
						"enable_" + string(ch):                enabled,
						string(ch) + "_events_" + kind.Slug(): routed,
					}
					opts, _, _ = config.Sanitize(in, opts)
					if got := WantsEvent(ch, kind, &opts); got != (enabled && routed) {
						t.Fatalf("%s/%s enabled=%v routed=%v: got %v", ch, kind, enabled, routed, got)
					}
				}
			}
		}
	}
}

func TestNotifyAllWebhookScenario(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook = true
	opts.WebhookEventsSent = true
	opts.WebhookURL = srv.URL + "/h"
	m := newTestManager(t, opts)

	ev := Sent(mail.FromAny(map[string]any{"to": []any{"a@x.com"}, "subject": "Hi", "message": "Body text"}))
	if err := m.NotifyAll(context.Background(), ev); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if c.count() != 1 || c.paths[0] != "/h" {
		t.Fatalf("expected exactly one POST to /h, got %v", c.paths)
	}
	body := decodeJSON(t, c.bodies[0])
	m2 := body["mail"].(map[string]any)
	if body["event"] != "Sent" || m2["to"] != "a@x.com" || m2["subject"] != "Hi" {
		t.Fatalf("unexpected webhook body: %s", c.bodies[0])
	}
}

func TestNotifyAllDiscordFailedScenario(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableDiscord = true
	opts.DiscordWebhookURL = srv.URL
	m := newTestManager(t, opts)

	ev := Failed(nil, &MailError{Code: "smtp_error", Message: "Mailbox full"})
	if err := m.NotifyAll(context.Background(), ev); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if c.count() != 1 {
		t.Fatalf("expected one POST, got %d", c.count())
	}
	content := decodeJSON(t, c.bodies[0])["content"].(string)
	if !strings.Contains(content, "**[Shop] Email Failed**") || !strings.Contains(content, "\nMailbox full\n") {
		t.Fatalf("content should carry title and summary: %q", content)
	}
	fenced := content[strings.Index(content, "```"):]
	if !strings.Contains(fenced, "Mailbox full") || !strings.HasSuffix(fenced, "```") {
		t.Fatalf("fenced block should contain the error: %q", fenced)
	}
}

func TestNotifyAllChannelIsolation(t *testing.T) {
	pushover, pushSrv := newCapture(t)
	slack, slackSrv := newCapture(t)
	hook, hookSrv := newCapture(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	withPushoverURL(t, pushSrv.URL)

	opts := config.DefaultOptions()
	opts.EnablePushover, opts.PushoverAppToken, opts.PushoverUserKey = true, "tok", "user"
	opts.EnableDiscord, opts.DiscordWebhookURL = true, deadURL
	opts.EnableSlack, opts.SlackWebhookURL = true, slackSrv.URL
	opts.EnableWebhook, opts.WebhookURL = true, hookSrv.URL
	m := newTestManager(t, opts)

	if err := m.NotifyAll(context.Background(), Blocked(mail.Text("x"), "")); err != nil {
		t.Fatalf("channel failures must not surface: %v", err)
	}
	for name, c := range map[string]*capture{"pushover": pushover, "slack": slack, "webhook": hook} {
		if c.count() != 1 {
			t.Fatalf("%s should fire exactly once, got %d", name, c.count())
		}
	}
}

func TestNotifyAllNon2xxIsSwallowed(t *testing.T) {
	c, srv := newCapture(t)
	c.status = http.StatusInternalServerError
	opts := config.DefaultOptions()
	opts.EnableSlack, opts.SlackWebhookURL = true, srv.URL
	m := newTestManager(t, opts)
	if err := m.NotifyAll(context.Background(), Failed(nil, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.count() != 1 {
		t.Fatalf("expected a single attempt without retries, got %d", c.count())
	}
}

func TestNotifyAllPushoverWithoutTokenMakesNoCalls(t *testing.T) {
	c, srv := newCapture(t)
	withPushoverURL(t, srv.URL)
	opts := config.DefaultOptions()
	opts.EnablePushover = true
	opts.PushoverUserKey = "user"
	m := newTestManager(t, opts)
	if err := m.NotifyAll(context.Background(), Failed(nil, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.count() != 0 {
		t.Fatalf("expected zero calls, got %d", c.count())
	}
}

func TestNotifyAllRespectsRouting(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook, opts.WebhookURL = true, srv.URL
	m := newTestManager(t, opts)
	if err := m.NotifyAll(context.Background(), Sent(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.count() != 0 {
		t.Fatalf("sent events are not routed by default, got %d calls", c.count())
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("db down")
}
func (failingStore) Set(context.Context, string, []byte) error { return errors.New("db down") }

func TestNotifyAllStoreFailureAborts(t *testing.T) {
	m := NewManager(failingStore{}, testSite, nil)
	err := m.NotifyAll(context.Background(), Sent(nil))
	if !errors.Is(err, config.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNotifyAllIgnoresCallerCancellation(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook, opts.WebhookURL = true, srv.URL
	m := newTestManager(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	store := m.store
	m.store = cancelOnGet{Store: store, cancel: cancel}
	if err := m.NotifyAll(ctx, Failed(nil, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.count() != 1 {
		t.Fatalf("dispatch should complete after caller cancellation, got %d", c.count())
	}
}

type cancelOnGet struct {
	config.Store
	cancel context.CancelFunc
}

func (s cancelOnGet) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := s.Store.Get(ctx, key)
	s.cancel()
	return b, ok, err
}

// ctxStore fails reads once the context is done, like the redis and
// postgres stores.
type ctxStore struct {
	config.Store
}

func (s ctxStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.Store.Get(ctx, key)
}

func TestNotifyAllWithCancelledContextStillLoadsOptions(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook, opts.WebhookURL = true, srv.URL
	m := newTestManager(t, opts)
	m.store = ctxStore{Store: m.store}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.NotifyAll(ctx, Failed(nil, nil)); err != nil {
		t.Fatalf("cancelled caller must not drop the event: %v", err)
	}
	if c.count() != 1 {
		t.Fatalf("expected one webhook call, got %d", c.count())
	}
}

func TestOnlyNotifyAllCountsEvents(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook, opts.WebhookURL = true, srv.URL
	m := newTestManager(t, opts)

	before := metrics.GetSnapshot().Events
	if _, err := m.SendTest(context.Background(), config.ChannelWebhook, KindFailed); err != nil {
		t.Fatalf("send test: %v", err)
	}
	if _, err := m.Dispatch(context.Background(), config.ChannelWebhook, Blocked(nil, "x")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := metrics.GetSnapshot().Events; got != before {
		t.Fatalf("test dispatches were counted as events: %d -> %d", before, got)
	}
	if err := m.NotifyAll(context.Background(), Failed(nil, nil)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := metrics.GetSnapshot().Events; got != before+1 {
		t.Fatalf("expected one counted event, got %d -> %d", before, got)
	}
	if c.count() != 3 {
		t.Fatalf("expected three webhook calls, got %d", c.count())
	}
}

func TestDispatchSingleChannel(t *testing.T) {
	slack, slackSrv := newCapture(t)
	hook, hookSrv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableSlack, opts.SlackWebhookURL = true, slackSrv.URL
	opts.EnableWebhook, opts.WebhookURL = true, hookSrv.URL
	m := newTestManager(t, opts)

	sent, err := m.Dispatch(context.Background(), config.ChannelSlack, Failed(nil, nil))
	if err != nil || !sent {
		t.Fatalf("expected dispatch, got %v %v", sent, err)
	}
	if slack.count() != 1 || hook.count() != 0 {
		t.Fatalf("only slack should fire: slack=%d webhook=%d", slack.count(), hook.count())
	}
}

func TestSendTest(t *testing.T) {
	c, srv := newCapture(t)
	opts := config.DefaultOptions()
	opts.EnableWebhook, opts.WebhookURL = true, srv.URL
	opts.IncludeHeaders = true
	m := newTestManager(t, opts)

	sent, err := m.SendTest(context.Background(), config.ChannelWebhook, KindFailed)
	if err != nil || !sent {
		t.Fatalf("expected test dispatch, got %v %v", sent, err)
	}
	body := decodeJSON(t, c.bodies[0])
	if body["summary"] != `This is a test "failed" notification.` {
		t.Fatalf("unexpected summary %v", body["summary"])
	}
	e := body["error"].(map[string]any)
	if e["code"] != "wp_mail_failed" || e["message"] != "Simulated failure" {
		t.Fatalf("unexpected error block %v", e)
	}
	md := body["mail"].(map[string]any)
	if md["to"] != "test@example.com" || md["headers"] != "X-Test: 1" {
		t.Fatalf("unexpected mail %v", md)
	}

	sent, err = m.SendTest(context.Background(), config.ChannelWebhook, KindSent)
	if err != nil || sent {
		t.Fatalf("sent is not routed by default, got %v %v", sent, err)
	}
	sent, _ = m.SendTest(context.Background(), config.ChannelDiscord, KindFailed)
	if sent {
		t.Fatalf("disabled channel must not dispatch")
	}
}

func TestWaitReturnsWhenIdle(t *testing.T) {
	m := newTestManager(t, config.DefaultOptions())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
