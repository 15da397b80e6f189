package notify

import (
	"github.com/mailnotify/mailnotify/internal/config"
)

// Chat message limits, below the services' hard caps to leave room for the
// title and fences.
const (
	discordTextLimit = 1900
	slackTextLimit   = 2900
)

// --- Discord ---
type Discord struct{}

func (Discord) Name() config.ChannelName { return config.ChannelDiscord }
func (Discord) Render(p *Payload, opts *config.Options) (*Request, bool) {
	cc := opts.Channel(config.ChannelDiscord)
	if cc.URL == "" {
		return nil, false
	}
	content := "**" + p.Title + "**\n" +
		p.Summary + "\n" +
		"```" + Truncate(p.Message, discordTextLimit) + "```"
	return jsonRequest(cc.URL, map[string]string{"content": content})
}

// --- Slack ---
type Slack struct{}

func (Slack) Name() config.ChannelName { return config.ChannelSlack }
func (Slack) Render(p *Payload, opts *config.Options) (*Request, bool) {
	cc := opts.Channel(config.ChannelSlack)
	if cc.URL == "" {
		return nil, false
	}
	text := "*" + p.Title + "*\n" + p.Summary + "\n" +
		"```\n" + Truncate(p.Message, slackTextLimit) + "\n```"
	return jsonRequest(cc.URL, map[string]string{"text": text})
}
