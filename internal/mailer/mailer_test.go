package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/mailnotify/mailnotify/internal/config"
)

type mockSESClient struct {
	calls int
	last  *sesv2.SendEmailInput
	err   error
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.calls++
	m.last = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

var testConn = config.Connection{ID: "c1", Type: "smtp", Title: "Relay", FromEmail: "site@x.com", FromName: "Site", Host: "mail.x.com", Port: 2525, Username: "u", Password: "p"}

func TestTestMessage(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	msg := TestMessage(testConn, "to@x.com", "", TestInfo{SiteName: "Shop", SiteURL: "https://shop.test", Timezone: "UTC", Now: now})
	if msg.From != "site@x.com" || msg.FromName != "Site" || msg.To[0] != "to@x.com" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	for _, want := range []string{"  ID:              c1", "  Connection Title: Relay", "  Date & Time:     2024-05-06 07:08:09 (UTC)"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}

	bare := config.Connection{ID: "c2", FromEmail: "a@x.com"}
	msg = TestMessage(bare, "to@x.com", "override@x.com", TestInfo{SiteName: "Shop"})
	if msg.From != "override@x.com" || msg.FromName != "Shop" {
		t.Fatalf("unexpected fallback addressing: %+v", msg)
	}
	if !strings.Contains(msg.Body, "Connection Title: (none)") {
		t.Fatalf("missing title placeholder:\n%s", msg.Body)
	}
}

func TestSESSend(t *testing.T) {
	mock := &mockSESClient{}
	s := NewSESWithClient(mock)
	msg := &Message{From: "a@x.com", FromName: "Site", To: []string{"b@x.com"}, Subject: "S", Body: "B"}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected one call, got %d", mock.calls)
	}
	in := mock.last
	if *in.FromEmailAddress != `"Site" <a@x.com>` || in.Destination.ToAddresses[0] != "b@x.com" {
		t.Fatalf("unexpected addressing: %v %v", *in.FromEmailAddress, in.Destination.ToAddresses)
	}
	if *in.Content.Simple.Subject.Data != "S" || *in.Content.Simple.Body.Text.Data != "B" {
		t.Fatalf("unexpected content")
	}

	mock.err = errors.New("throttled")
	if err := s.Send(context.Background(), msg); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSMTPSendUsesHook(t *testing.T) {
	orig := sendMailHook
	defer func() { sendMailHook = orig }()

	var gotAddr, gotFrom string
	var gotMsg []byte
	var gotAuth smtp.Auth
	sendMailHook = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotMsg = addr, a, from, msg
		return nil
	}

	s := NewSMTP(testConn)
	err := s.Send(context.Background(), &Message{From: "site@x.com", To: []string{"b@x.com"}, Subject: "Hi", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "mail.x.com:2525" || gotFrom != "site@x.com" || gotAuth == nil {
		t.Fatalf("unexpected smtp call: %s %s %v", gotAddr, gotFrom, gotAuth)
	}
	if !strings.Contains(string(gotMsg), "Subject: Hi\r\n") || !strings.HasSuffix(string(gotMsg), "line1\r\nline2") {
		t.Fatalf("unexpected message: %q", gotMsg)
	}
}

func TestSMTPDefaultsAndErrors(t *testing.T) {
	orig := sendMailHook
	defer func() { sendMailHook = orig }()
	sendMailHook = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }

	s := NewSMTP(config.Connection{Host: "h"})
	if s.Port != 587 {
		t.Fatalf("expected default port, got %d", s.Port)
	}
	if err := s.Send(context.Background(), &Message{To: []string{"a@x.com"}}); err == nil {
		t.Fatalf("expected error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, &Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestForConnection(t *testing.T) {
	s, err := ForConnection(context.Background(), testConn)
	if err != nil || s.Name() != "smtp" {
		t.Fatalf("expected smtp sender, got %v %v", s, err)
	}
	if _, err := ForConnection(context.Background(), config.Connection{ID: "x", Type: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
