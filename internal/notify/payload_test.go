package notify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/mail"
)

var (
	testSite = Site{Name: "Shop", URL: "https://shop.test/"}
	testNow  = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
)

func TestBuildPayloadRendersSections(t *testing.T) {
	opts := config.DefaultOptions()
	opts.IncludeHeaders = true
	ev := Sent(mail.Fields{
		"to":          []any{"a@x.com", "b@x.com"},
		"subject":     "Hi",
		"message":     "Body text",
		"headers":     map[string]any{"X-Test": "1"},
		"attachments": []any{"/tmp/a.pdf"},
	})
	p := BuildPayload(ev, &opts, testSite, testNow)

	if p.Title != "[Shop] Email Sent" {
		t.Fatalf("unexpected title %q", p.Title)
	}
	if p.Time != "2024-05-06 07:08:09" {
		t.Fatalf("unexpected time %q", p.Time)
	}
	want := strings.Join([]string{
		"An email was sent successfully.",
		"Site: Shop (https://shop.test/)",
		"When: 2024-05-06 07:08:09",
		"To: a@x.com, b@x.com",
		"Subject: Hi",
		"",
		"Body:",
		"Body text",
		"",
		"Headers:",
		"X-Test: 1",
		"",
		"Attachments: /tmp/a.pdf",
	}, "\n")
	if p.Message != want {
		t.Fatalf("unexpected rendered text:\n%s\nwant:\n%s", p.Message, want)
	}
}

func TestBuildPayloadErrorSection(t *testing.T) {
	opts := config.DefaultOptions()
	ev := Failed(nil, &MailError{Code: "smtp_error", Message: "Mailbox full", Data: map[string]any{"to": "a@x.com", "smtp_code": 552}})
	p := BuildPayload(ev, &opts, testSite, testNow)
	if p.Summary != "Mailbox full" {
		t.Fatalf("summary should be the error message, got %q", p.Summary)
	}
	if p.Mail.ToString() != "a@x.com" {
		t.Fatalf("error data should stand in for missing mail data, got %+v", p.Mail)
	}
	if !strings.HasSuffix(p.Message, "\nError:\nCode: smtp_error\nMessage: Mailbox full\nData: {\"smtp_code\":552,\"to\":\"a@x.com\"}") {
		t.Fatalf("unexpected error section:\n%s", p.Message)
	}

	p = BuildPayload(Failed(nil, &MailError{Code: "x"}), &opts, testSite, testNow)
	if strings.Contains(p.Message, "Message:") || strings.Contains(p.Message, "Data:") {
		t.Fatalf("empty error fields should be left out:\n%s", p.Message)
	}
	if p.Summary != "Email failed to send." {
		t.Fatalf("unexpected default summary %q", p.Summary)
	}
}

func TestBuildPayloadOmitsEmptySections(t *testing.T) {
	opts := config.DefaultOptions()
	opts.IncludeBody = true
	p := BuildPayload(Sent(nil), &opts, testSite, testNow)
	want := "An email was sent successfully.\nSite: Shop (https://shop.test/)\nWhen: 2024-05-06 07:08:09"
	if p.Message != want {
		t.Fatalf("unexpected text:\n%s", p.Message)
	}
	if p.Error != nil {
		t.Fatalf("error block should be absent")
	}
}

func TestBuildPayloadBlockedReason(t *testing.T) {
	opts := config.DefaultOptions()
	p := BuildPayload(Blocked(mail.Fields{"to": "a@x.com"}, "recipient on deny list"), &opts, testSite, testNow)
	if p.Mail.Extra["reason"] != "recipient on deny list" {
		t.Fatalf("reason should be kept as a pass-through field: %+v", p.Mail.Extra)
	}
	if p.Title != "[Shop] Email Blocked" {
		t.Fatalf("unexpected title %q", p.Title)
	}
}

func TestHeadersPresentIffIncluded(t *testing.T) {
	ev := Sent(mail.Fields{"headers": "X-A: 1"})
	for _, include := range []bool{true, false} {
		opts := config.DefaultOptions()
		opts.IncludeHeaders = config.Flag(include)
		p := BuildPayload(ev, &opts, testSite, testNow)
		b, _ := json.Marshal(p)
		var got struct {
			Mail map[string]any `json:"mail"`
		}
		_ = json.Unmarshal(b, &got)
		_, present := got.Mail["headers"]
		if present != include {
			t.Fatalf("include_headers=%v: headers present=%v in %s", include, present, b)
		}
		if strings.Contains(p.Message, "Headers:") != include {
			t.Fatalf("include_headers=%v: unexpected text %q", include, p.Message)
		}
	}
}

func TestRedactionMarkerWhenBodyExcluded(t *testing.T) {
	opts := config.DefaultOptions()
	opts.IncludeBody = false
	opts.TruncateBodyLen = 3
	bodies := []mail.Data{
		nil,
		mail.Text(""),
		mail.Text("short"),
		mail.Fields{"message": strings.Repeat("long body ", 500)},
		mail.Fields{"message": float64(42)},
	}
	for _, d := range bodies {
		p := BuildPayload(Sent(d), &opts, testSite, testNow)
		if p.Mail.Message == nil || *p.Mail.Message != BodyOmitted {
			t.Fatalf("expected redaction marker for %#v, got %v", d, p.Mail.Message)
		}
	}
}

func TestTruncationBound(t *testing.T) {
	for _, tc := range []struct {
		body string
		l    int
	}{
		{strings.Repeat("a", 50), 10},
		{strings.Repeat("é", 30), 7},
		{"abcdef", 5},
		{strings.Repeat("x", 2000), 1000},
	} {
		opts := config.DefaultOptions()
		opts.TruncateBodyLen = tc.l
		p := BuildPayload(Sent(mail.Text(tc.body)), &opts, testSite, testNow)
		got := *p.Mail.Message
		if n := utf8.RuneCountInString(got); n != tc.l+utf8.RuneCountInString(TruncatedMarker) {
			t.Fatalf("L=%d: expected %d runes, got %d", tc.l, tc.l+utf8.RuneCountInString(TruncatedMarker), n)
		}
		if string([]rune(got)[:tc.l]) != string([]rune(tc.body)[:tc.l]) {
			t.Fatalf("L=%d: prefix mismatch %q", tc.l, got)
		}
		if !strings.HasSuffix(got, TruncatedMarker) {
			t.Fatalf("missing truncation marker: %q", got)
		}
	}

	opts := config.DefaultOptions()
	opts.TruncateBodyLen = 10
	p := BuildPayload(Sent(mail.Text("exactly10!")), &opts, testSite, testNow)
	if *p.Mail.Message != "exactly10!" {
		t.Fatalf("body at the limit should pass through, got %q", *p.Mail.Message)
	}
}

func TestZeroTruncationLengthNeverTruncates(t *testing.T) {
	opts := config.DefaultOptions()
	opts.TruncateBodyLen = 0
	for _, n := range []int{0, 1, 1000, 1001, 100000} {
		body := strings.Repeat("z", n)
		p := BuildPayload(Sent(mail.Text(body)), &opts, testSite, testNow)
		if p.Mail.Message == nil || *p.Mail.Message != body {
			t.Fatalf("length %d was truncated", n)
		}
	}
}

func TestPayloadJSONShape(t *testing.T) {
	opts := config.DefaultOptions()
	p := BuildPayload(Sent(mail.Fields{"to": []any{"a@x.com"}, "subject": "Hi", "message": "Body text", "connection_id": "c1"}), &opts, testSite, testNow)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event"] != "Sent" || got["title"] != "[Shop] Email Sent" || got["error"] != nil {
		t.Fatalf("unexpected payload: %s", b)
	}
	m := got["mail"].(map[string]any)
	if m["to"] != "a@x.com" || m["subject"] != "Hi" || m["connection_id"] != "c1" {
		t.Fatalf("unexpected mail: %v", m)
	}
	site := got["site"].(map[string]any)
	if site["name"] != "Shop" || site["url"] != "https://shop.test/" {
		t.Fatalf("unexpected site: %v", site)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hell…"},
		{"ééééé", 3, "éé…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestKindParsing(t *testing.T) {
	for _, s := range []string{"sent", "SENT", " Sent "} {
		if k, err := ParseKind(s); err != nil || k != KindSent {
			t.Fatalf("ParseKind(%q) = %v, %v", s, k, err)
		}
	}
	if _, err := ParseKind("bounced"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	var k Kind
	if err := json.Unmarshal([]byte(`"blocked"`), &k); err != nil || k != KindBlocked {
		t.Fatalf("unexpected kind %v %v", k, err)
	}
	if KindFailed.Slug() != "failed" || KindFailed.String() != "Failed" {
		t.Fatalf("unexpected names")
	}
}
