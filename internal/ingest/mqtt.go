package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
)

// MQTTOptions configures the MQTT subscriber.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
}

// MQTTSubscriber feeds events published on an MQTT topic to a Handler. The
// subscription is re-established on every (re)connect.
type MQTTSubscriber struct {
	opts   MQTTOptions
	client mqtt.Client
	handle Handler
	ctx    context.Context
}

func NewMQTTSubscriber(o MQTTOptions, h Handler) *MQTTSubscriber {
	s := &MQTTSubscriber{opts: o, handle: h, ctx: context.Background()}
	log := logging.Component("ingest.mqtt")

	co := mqtt.NewClientOptions().
		AddBroker(o.BrokerURL).
		SetClientID(o.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if o.Username != "" {
		co.SetUsername(o.Username)
	}
	if o.Password != "" {
		co.SetPassword(o.Password)
	}
	co.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", o.BrokerURL).Msg("mqtt connected")
		if token := c.Subscribe(o.Topic, o.QoS, s.onMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", o.Topic).Msg("mqtt subscribe failed")
		} else {
			log.Info().Str("topic", o.Topic).Int("qos", int(o.QoS)).Msg("mqtt subscribed")
		}
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}
	s.client = mqtt.NewClient(co)
	return s
}

// Start connects to the broker and waits for the first connection until ctx
// is done or 30s pass. The client keeps retrying in the background after
// either. Handlers run with ctx.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	token := s.client.Connect()
	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect %s: %w", s.opts.BrokerURL, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("mqtt connect %s: timed out", s.opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.opts.BrokerURL, err)
	}
	return nil
}

// Stop disconnects, allowing in-flight work a short grace period.
func (s *MQTTSubscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.opts.Topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(250)
}

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	log := logging.Component("ingest.mqtt")
	ev, err := Decode(msg.Payload())
	if err != nil {
		metrics.IncIngestError("mqtt")
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("skipping undecodable message")
		return
	}
	if err := s.handle(s.ctx, ev); err != nil {
		log.Error().Err(err).Str("event", ev.Kind.String()).Msg("event dropped")
	}
}
