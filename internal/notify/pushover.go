package notify

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/mailnotify/mailnotify/internal/config"
)

var pushoverAPIURL = "https://api.pushover.net/1/messages.json"

// pushoverMessageLimit is the Pushover message length limit.
const pushoverMessageLimit = 1024

// Pushover posts a form-encoded message to the Pushover API.
type Pushover struct{}

func (Pushover) Name() config.ChannelName { return config.ChannelPushover }

func (Pushover) Render(p *Payload, opts *config.Options) (*Request, bool) {
	cc := opts.Channel(config.ChannelPushover)
	if cc.Token == "" || cc.UserKey == "" {
		return nil, false
	}
	form := url.Values{}
	form.Set("token", cc.Token)
	form.Set("user", cc.UserKey)
	form.Set("title", p.Title)
	form.Set("message", Truncate(p.Message, pushoverMessageLimit))
	form.Set("priority", strconv.Itoa(cc.Priority))
	if cc.Device != "" {
		form.Set("device", cc.Device)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return &Request{Method: http.MethodPost, URL: pushoverAPIURL, Header: h, Body: []byte(form.Encode())}, true
}
