package notify

import "github.com/mailnotify/mailnotify/internal/config"

// WantsEvent reports whether channel is enabled and routed for kind.
func WantsEvent(channel config.ChannelName, kind Kind, opts *config.Options) bool {
	cc := opts.Channel(channel)
	return cc.Enabled && cc.Events[kind.Slug()]
}
