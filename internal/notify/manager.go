package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
)

// DefaultChannels returns the four channels in dispatch order.
func DefaultChannels() []Channel {
	return []Channel{Pushover{}, Webhook{}, Discord{}, Slack{}}
}

// Manager fans each event out to every routed channel. Options are read from
// the store on every invocation and never cached.
type Manager struct {
	store    config.Store
	site     Site
	loc      *time.Location
	client   *http.Client
	channels []Channel
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewManager returns a Manager dispatching to DefaultChannels. A nil loc
// means UTC.
func NewManager(store config.Store, site Site, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{
		store:    store,
		site:     site,
		loc:      loc,
		client:   &http.Client{Timeout: DispatchTimeout},
		channels: DefaultChannels(),
		now:      time.Now,
	}
}

// SetHTTPClient replaces the client used for outbound requests (tests).
func (m *Manager) SetHTTPClient(c *http.Client) {
	if c != nil {
		m.client = c
	}
}

// SetChannels replaces the channel set (tests).
func (m *Manager) SetChannels(chs []Channel) {
	m.channels = chs
}

// Site returns the site identity rendered into notifications.
func (m *Manager) Site() Site { return m.site }

// Wait waits for in-flight fan-outs to complete or until the provided
// context is cancelled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyAll loads the current options, builds the payload once and
// dispatches it to every channel routed for the event. It blocks until every
// dispatch has finished or timed out. Channel failures are logged and
// counted, never returned; only an option store failure is.
func (m *Manager) NotifyAll(ctx context.Context, ev Event) error {
	metrics.IncEvent(ev.Kind.String(), m.now().In(m.loc))
	_, err := m.fanOut(ctx, ev, m.channels)
	return err
}

// Dispatch runs the fan-out path for a single channel. It reports whether a
// request was attempted; transport failures do not count as errors. Dispatch
// is used for synthetic test events, so it does not count as an event.
func (m *Manager) Dispatch(ctx context.Context, channel config.ChannelName, ev Event) (bool, error) {
	var selected []Channel
	for _, ch := range m.channels {
		if ch.Name() == channel {
			selected = append(selected, ch)
		}
	}
	n, err := m.fanOut(ctx, ev, selected)
	return n > 0, err
}

func (m *Manager) fanOut(ctx context.Context, ev Event, chs []Channel) (int, error) {
	m.wg.Add(1)
	defer m.wg.Done()

	now := m.now().In(m.loc)
	log := logging.Get().With().Str("event", ev.Kind.String()).Logger()

	// The whole fan-out, option load included, outlives the caller's
	// context; each step is bounded by DispatchTimeout instead.
	dctx := context.WithoutCancel(ctx)
	lctx, cancel := context.WithTimeout(dctx, DispatchTimeout)
	opts, err := config.LoadOptions(lctx, m.store)
	cancel()
	if err != nil {
		metrics.IncStoreError()
		log.Error().Err(err).Msg("dropping event: cannot load notification options")
		return 0, err
	}

	p := BuildPayload(ev, &opts, m.site, now)

	var wg sync.WaitGroup
	attempted := 0
	for _, ch := range chs {
		name := string(ch.Name())
		if !WantsEvent(ch.Name(), ev.Kind, &opts) {
			metrics.IncDispatch(name, metrics.ResultUnrouted)
			continue
		}
		req, ok := ch.Render(p, &opts)
		if !ok {
			metrics.IncDispatch(name, metrics.ResultSkipped)
			log.Debug().Str("channel", name).Msg("channel not configured, skipping")
			continue
		}
		attempted++
		wg.Add(1)
		go func(name string, req *Request) {
			defer wg.Done()
			start := time.Now()
			err := Send(dctx, m.client, req)
			metrics.ObserveDispatchDuration(name, time.Since(start).Seconds())
			if err != nil {
				metrics.IncDispatch(name, metrics.ResultFailed)
				log.Debug().Err(err).Str("channel", name).Msg("notification dispatch failed")
				return
			}
			metrics.IncDispatch(name, metrics.ResultSent)
			log.Debug().Str("channel", name).Msg("notification sent")
		}(name, req)
	}
	wg.Wait()
	return attempted, nil
}
