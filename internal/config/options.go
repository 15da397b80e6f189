package config

import (
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flag is a stored on/off option. It decodes 0/1, "0"/"1", true/false and
// "on"/"off", and encodes as 0 or 1.
type Flag bool

// MarshalJSON encodes the flag as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts any JSON scalar.
func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Flag(truthy(v))
	return nil
}

// MarshalYAML encodes the flag as 0 or 1.
func (f Flag) MarshalYAML() (any, error) {
	if f {
		return 1, nil
	}
	return 0, nil
}

// UnmarshalYAML accepts any YAML scalar.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	*f = Flag(truthy(v))
	return nil
}

// ChannelName identifies a notification channel in option keys.
type ChannelName string

// Channels, in dispatch order.
const (
	ChannelPushover ChannelName = "pushover"
	ChannelWebhook  ChannelName = "webhook"
	ChannelDiscord  ChannelName = "discord"
	ChannelSlack    ChannelName = "slack"
)

// Channels lists every channel.
var Channels = []ChannelName{ChannelPushover, ChannelWebhook, ChannelDiscord, ChannelSlack}

// Options is the notification option schema, stored as one document.
type Options struct {
	IncludeBody     Flag `json:"include_body" yaml:"include_body"`
	IncludeHeaders  Flag `json:"include_headers" yaml:"include_headers"`
	TruncateBodyLen int  `json:"truncate_body_len" yaml:"truncate_body_len"`

	EnablePushover        Flag   `json:"enable_pushover" yaml:"enable_pushover"`
	PushoverAppToken      string `json:"pushover_app_token" yaml:"pushover_app_token"`
	PushoverUserKey       string `json:"pushover_user_key" yaml:"pushover_user_key"`
	PushoverDevice        string `json:"pushover_device" yaml:"pushover_device"`
	PushoverPriority      int    `json:"pushover_priority" yaml:"pushover_priority"`
	PushoverEventsSent    Flag   `json:"pushover_events_sent" yaml:"pushover_events_sent"`
	PushoverEventsFailed  Flag   `json:"pushover_events_failed" yaml:"pushover_events_failed"`
	PushoverEventsBlocked Flag   `json:"pushover_events_blocked" yaml:"pushover_events_blocked"`

	EnableDiscord        Flag   `json:"enable_discord" yaml:"enable_discord"`
	DiscordWebhookURL    string `json:"discord_webhook_url" yaml:"discord_webhook_url"`
	DiscordEventsSent    Flag   `json:"discord_events_sent" yaml:"discord_events_sent"`
	DiscordEventsFailed  Flag   `json:"discord_events_failed" yaml:"discord_events_failed"`
	DiscordEventsBlocked Flag   `json:"discord_events_blocked" yaml:"discord_events_blocked"`

	EnableSlack        Flag   `json:"enable_slack" yaml:"enable_slack"`
	SlackWebhookURL    string `json:"slack_webhook_url" yaml:"slack_webhook_url"`
	SlackEventsSent    Flag   `json:"slack_events_sent" yaml:"slack_events_sent"`
	SlackEventsFailed  Flag   `json:"slack_events_failed" yaml:"slack_events_failed"`
	SlackEventsBlocked Flag   `json:"slack_events_blocked" yaml:"slack_events_blocked"`

	EnableWebhook        Flag   `json:"enable_webhook" yaml:"enable_webhook"`
	WebhookURL           string `json:"webhook_url" yaml:"webhook_url"`
	WebhookEventsSent    Flag   `json:"webhook_events_sent" yaml:"webhook_events_sent"`
	WebhookEventsFailed  Flag   `json:"webhook_events_failed" yaml:"webhook_events_failed"`
	WebhookEventsBlocked Flag   `json:"webhook_events_blocked" yaml:"webhook_events_blocked"`
}

// DefaultOptions returns the option defaults. Sent is off for every channel;
// Failed and Blocked are on.
func DefaultOptions() Options {
	return Options{
		IncludeBody:     true,
		IncludeHeaders:  false,
		TruncateBodyLen: 1000,

		PushoverEventsFailed:  true,
		PushoverEventsBlocked: true,
		DiscordEventsFailed:   true,
		DiscordEventsBlocked:  true,
		SlackEventsFailed:     true,
		SlackEventsBlocked:    true,
		WebhookEventsFailed:   true,
		WebhookEventsBlocked:  true,
	}
}

// ChannelConfig is the per-channel view of Options.
type ChannelConfig struct {
	Name    ChannelName
	Enabled bool
	// Events is keyed by event slug ("sent", "failed", "blocked").
	Events map[string]bool

	URL      string
	Token    string
	UserKey  string
	Device   string
	Priority int
}

// Channel returns the configuration of one channel. Unknown names yield a
// disabled config.
func (o *Options) Channel(name ChannelName) ChannelConfig {
	cc := ChannelConfig{Name: name}
	var sent, failed, blocked Flag
	switch name {
	case ChannelPushover:
		cc.Enabled = bool(o.EnablePushover)
		cc.Token = strings.TrimSpace(o.PushoverAppToken)
		cc.UserKey = strings.TrimSpace(o.PushoverUserKey)
		cc.Device = strings.TrimSpace(o.PushoverDevice)
		cc.Priority = clamp(o.PushoverPriority, -2, 2)
		sent, failed, blocked = o.PushoverEventsSent, o.PushoverEventsFailed, o.PushoverEventsBlocked
	case ChannelDiscord:
		cc.Enabled = bool(o.EnableDiscord)
		cc.URL = strings.TrimSpace(o.DiscordWebhookURL)
		sent, failed, blocked = o.DiscordEventsSent, o.DiscordEventsFailed, o.DiscordEventsBlocked
	case ChannelSlack:
		cc.Enabled = bool(o.EnableSlack)
		cc.URL = strings.TrimSpace(o.SlackWebhookURL)
		sent, failed, blocked = o.SlackEventsSent, o.SlackEventsFailed, o.SlackEventsBlocked
	case ChannelWebhook:
		cc.Enabled = bool(o.EnableWebhook)
		cc.URL = strings.TrimSpace(o.WebhookURL)
		sent, failed, blocked = o.WebhookEventsSent, o.WebhookEventsFailed, o.WebhookEventsBlocked
	}
	cc.Events = map[string]bool{"sent": bool(sent), "failed": bool(failed), "blocked": bool(blocked)}
	return cc
}

// AnyChannelEnabled reports whether at least one channel is switched on.
func (o *Options) AnyChannelEnabled() bool {
	return bool(o.EnablePushover || o.EnableDiscord || o.EnableSlack || o.EnableWebhook)
}

type fieldKind int

const (
	kindFlag fieldKind = iota
	kindText
	kindURL
	kindPriority
	kindLength
)

type field struct {
	key  string
	kind fieldKind
	flag *Flag
	text *string
	num  *int
}

// fields lists every option in schema order with a pointer into o.
func (o *Options) fields() []field {
	return []field{
		{key: "include_body", kind: kindFlag, flag: &o.IncludeBody},
		{key: "include_headers", kind: kindFlag, flag: &o.IncludeHeaders},
		{key: "truncate_body_len", kind: kindLength, num: &o.TruncateBodyLen},

		{key: "enable_pushover", kind: kindFlag, flag: &o.EnablePushover},
		{key: "enable_discord", kind: kindFlag, flag: &o.EnableDiscord},
		{key: "enable_slack", kind: kindFlag, flag: &o.EnableSlack},
		{key: "enable_webhook", kind: kindFlag, flag: &o.EnableWebhook},

		{key: "pushover_app_token", kind: kindText, text: &o.PushoverAppToken},
		{key: "pushover_user_key", kind: kindText, text: &o.PushoverUserKey},
		{key: "pushover_device", kind: kindText, text: &o.PushoverDevice},
		{key: "pushover_priority", kind: kindPriority, num: &o.PushoverPriority},
		{key: "discord_webhook_url", kind: kindURL, text: &o.DiscordWebhookURL},
		{key: "slack_webhook_url", kind: kindURL, text: &o.SlackWebhookURL},
		{key: "webhook_url", kind: kindURL, text: &o.WebhookURL},

		{key: "pushover_events_sent", kind: kindFlag, flag: &o.PushoverEventsSent},
		{key: "pushover_events_failed", kind: kindFlag, flag: &o.PushoverEventsFailed},
		{key: "pushover_events_blocked", kind: kindFlag, flag: &o.PushoverEventsBlocked},
		{key: "discord_events_sent", kind: kindFlag, flag: &o.DiscordEventsSent},
		{key: "discord_events_failed", kind: kindFlag, flag: &o.DiscordEventsFailed},
		{key: "discord_events_blocked", kind: kindFlag, flag: &o.DiscordEventsBlocked},
		{key: "slack_events_sent", kind: kindFlag, flag: &o.SlackEventsSent},
		{key: "slack_events_failed", kind: kindFlag, flag: &o.SlackEventsFailed},
		{key: "slack_events_blocked", kind: kindFlag, flag: &o.SlackEventsBlocked},
		{key: "webhook_events_sent", kind: kindFlag, flag: &o.WebhookEventsSent},
		{key: "webhook_events_failed", kind: kindFlag, flag: &o.WebhookEventsFailed},
		{key: "webhook_events_blocked", kind: kindFlag, flag: &o.WebhookEventsBlocked},
	}
}

// Keys returns every option key in schema order.
func Keys() []string {
	var o Options
	fs := o.fields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.key
	}
	return out
}

// truthy follows the host's notion of a non-empty value: nil, false, 0, ""
// and "0" are false. "false", "off" and "no" are treated as false too.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case Flag:
		return bool(t)
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "off", "no":
			return false
		}
		return true
	default:
		return true
	}
}

// toInt converts a decoded scalar to int, yielding 0 for anything unusable.
func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	}
	return 0
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
