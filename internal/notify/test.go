package notify

import (
	"context"
	"fmt"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/mail"
)

// TestEvent builds the synthetic event used to check a channel's wiring.
// Failed events carry a simulated delivery error.
func TestEvent(kind Kind) Event {
	data := mail.Fields{
		"to":      "test@example.com",
		"subject": "Mailnotify — test message",
		"message": "Hello! If you can read this, your channel is wired up correctly.",
		"headers": map[string]any{"X-Test": "1"},
	}
	var mailErr *MailError
	if kind == KindFailed {
		mailErr = &MailError{
			Code:    "wp_mail_failed",
			Message: "Simulated failure",
			Data:    map[string]any{"smtp_code": "450", "smtp_detail": "Mailbox busy"},
		}
	}
	ev := New(kind, data, mailErr, "")
	ev.Summary = fmt.Sprintf("This is a test %q notification.", kind.Slug())
	return ev
}

// SendTest dispatches TestEvent(kind) to one channel, honouring that
// channel's enable flag and routing. It reports whether a request was sent.
func (m *Manager) SendTest(ctx context.Context, channel config.ChannelName, kind Kind) (bool, error) {
	return m.Dispatch(ctx, channel, TestEvent(kind))
}
