package notify

import (
	"github.com/google/uuid"

	"github.com/mailnotify/mailnotify/internal/config"
)

// Webhook headers.
const (
	HeaderEvent    = "X-Mailnotify-Event"
	HeaderDelivery = "X-Mailnotify-Delivery"
)

// Webhook posts the full payload as JSON to a configured URL.
type Webhook struct{}

func (Webhook) Name() config.ChannelName { return config.ChannelWebhook }

func (Webhook) Render(p *Payload, opts *config.Options) (*Request, bool) {
	cc := opts.Channel(config.ChannelWebhook)
	if cc.URL == "" {
		return nil, false
	}
	req, ok := jsonRequest(cc.URL, p)
	if !ok {
		return nil, false
	}
	req.Header.Set(HeaderEvent, p.Event.String())
	req.Header.Set(HeaderDelivery, uuid.NewString())
	return req, true
}
