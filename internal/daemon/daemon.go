package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mailnotify/mailnotify/internal/automation"
	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/ingest"
	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
	"github.com/mailnotify/mailnotify/internal/notify"
	"github.com/mailnotify/mailnotify/internal/remote"
	"github.com/mailnotify/mailnotify/internal/state"
)

// Daemon wires the event sources to the notification manager and the
// automation emitter, and serves the HTTP surface.
type Daemon struct {
	cfg        *config.Config
	store      config.Store
	closeStore func() error
	manager    *notify.Manager
	emitter    *automation.Emitter
	remote     *remote.Service

	server   *http.Server
	listener net.Listener
	mqtt     *ingest.MQTTSubscriber

	cancel func()         // cancels background sources, set at Start
	wg     sync.WaitGroup // tracks background sources
}

// New opens the option store selected by cfg, seeds it from the config file
// options when it is empty and builds the daemon.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	store, closeStore, err := state.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open option store: %w", err)
	}
	if cfg.Options != nil {
		seed, errs := config.Clean(*cfg.Options)
		for _, fe := range errs {
			logging.Get().Warn().Str("key", fe.Key).Msg("config file option rejected: " + fe.Message)
		}
		seeded, err := config.SeedOptions(ctx, store, seed)
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("seed options: %w", err)
		}
		if seeded {
			logging.Get().Info().Msg("option store seeded from config file")
		}
	}
	d := NewWithStore(cfg, store)
	d.closeStore = closeStore
	if len(cfg.KafkaBrokers) > 0 {
		d.emitter = automation.NewEmitter(automation.NewKafkaWriter(cfg.KafkaBrokers), cfg.AutomationTopicPrefix, d.automationMeta(), cfg.Location())
	}
	return d, nil
}

// NewWithStore builds a daemon around an existing store. No automation
// publisher is attached.
func NewWithStore(cfg *config.Config, store config.Store) *Daemon {
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}
	m := notify.NewManager(store, notify.Site{Name: cfg.SiteName, URL: cfg.SiteURL}, cfg.Location())
	if cfg.DispatchTimeout > 0 {
		m.SetHTTPClient(&http.Client{Timeout: cfg.DispatchTimeout})
	}
	return &Daemon{
		cfg:        cfg,
		store:      store,
		closeStore: func() error { return nil },
		manager:    m,
		remote:     remote.NewService(cfg, store),
	}
}

// SetEmitter replaces the automation emitter.
func (d *Daemon) SetEmitter(e *automation.Emitter) { d.emitter = e }

// Manager returns the notification manager.
func (d *Daemon) Manager() *notify.Manager { return d.manager }

func (d *Daemon) automationMeta() automation.Meta {
	return automation.Meta{SiteName: d.cfg.SiteName, SiteURL: d.cfg.SiteURL, Timezone: d.cfg.Timezone}
}

// HandleEvent publishes the automation copy of ev, then notifies every
// routed channel. Automation failures are logged only.
func (d *Daemon) HandleEvent(ctx context.Context, ev notify.Event) error {
	if err := d.emitter.Emit(ctx, ev); err != nil {
		logging.Get().Warn().Err(err).Str("event", ev.Kind.Slug()).Msg("automation emit failed")
	}
	return d.manager.NotifyAll(ctx, ev)
}

// Start begins listening on cfg.Listen and starts the configured event
// sources. It returns once everything is running.
func (d *Daemon) Start() error {
	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Listen, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.listener = ln
	d.server = &http.Server{Handler: d.Routes(), ReadHeaderTimeout: 10 * time.Second}

	logging.Get().Info().Str("addr", ln.Addr().String()).Msg("starting mailnotify daemon")
	d.goRun(func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Get().Error().Err(err).Msg("http server stopped")
		}
	})

	if len(d.cfg.KafkaBrokers) > 0 && d.cfg.KafkaEventsTopic != "" {
		r := ingest.NewKafkaReader(d.cfg.KafkaBrokers, d.cfg.KafkaGroupID, d.cfg.KafkaEventsTopic)
		c := ingest.NewKafkaConsumer(r, d.HandleEvent)
		d.goRun(func() {
			if err := c.Run(ctx); err != nil {
				logging.Get().Error().Err(err).Msg("kafka consumer stopped")
			}
		})
	}

	if d.cfg.MQTTBrokerURL != "" && d.cfg.MQTTTopic != "" {
		d.mqtt = ingest.NewMQTTSubscriber(ingest.MQTTOptions{
			BrokerURL: d.cfg.MQTTBrokerURL,
			ClientID:  d.cfg.MQTTClientID,
			Topic:     d.cfg.MQTTTopic,
			QoS:       d.cfg.MQTTQoS,
			Username:  d.cfg.MQTTUsername,
			Password:  d.cfg.MQTTPassword,
		}, d.HandleEvent)
		sub := d.mqtt
		d.goRun(func() {
			if err := sub.Start(ctx); err != nil {
				logging.Get().Warn().Err(err).Msg("mqtt broker not reachable yet")
			}
		})
	}

	if d.cfg.InfluxURL != "" {
		d.goRun(func() {
			metrics.StartInfluxPusher(ctx, d.cfg.InfluxURL, d.cfg.InfluxToken, d.cfg.InfluxOrg, d.cfg.InfluxBucket, d.cfg.InfluxInterval)
		})
	}
	return nil
}

// Addr returns the listening address once started.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Stop shuts the HTTP server down, stops the event sources and waits for
// in-flight notifications until ctx expires.
func (d *Daemon) Stop(ctx context.Context) {
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("http shutdown incomplete")
		}
	}
	if d.mqtt != nil {
		d.mqtt.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Get().Info().Msg("all event sources stopped")
	case <-ctx.Done():
		logging.Get().Warn().Msg("shutdown timeout exceeded, some operations may be incomplete")
	}

	if err := d.manager.Wait(ctx); err != nil {
		logging.Get().Warn().Err(err).Msg("timed out waiting for notifications to finish")
	}
	if err := d.emitter.Close(); err != nil {
		logging.Get().Warn().Err(err).Msg("closing automation publisher")
	}
	if err := d.closeStore(); err != nil {
		logging.Get().Warn().Err(err).Msg("closing option store")
	}
}
