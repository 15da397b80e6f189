package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
	"github.com/mailnotify/mailnotify/internal/notify"
)

// DefaultTopicPrefix names the per-event topics: suremail_notify_sent,
// suremail_notify_failed and suremail_notify_blocked.
const DefaultTopicPrefix = "suremail_notify_"

// Publisher is the part of *kafka.Writer the emitter needs.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer without a fixed topic; each
// message names its own topic.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
}

// Emitter publishes automation payloads. A nil *Emitter is valid and does
// nothing.
type Emitter struct {
	pub    Publisher
	prefix string
	meta   Meta
	loc    *time.Location
	now    func() time.Time
}

// NewEmitter returns an emitter publishing through pub. meta.Now is ignored;
// the timestamp is taken per event in loc.
func NewEmitter(pub Publisher, prefix string, meta Meta, loc *time.Location) *Emitter {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Emitter{pub: pub, prefix: prefix, meta: meta, loc: loc, now: time.Now}
}

// Topic returns the topic events of kind are published to.
func (e *Emitter) Topic(kind notify.Kind) string {
	return e.prefix + kind.Slug()
}

// Emit publishes one event. Failures are counted and returned; they never
// affect notification fan-out.
func (e *Emitter) Emit(ctx context.Context, ev notify.Event) error {
	if e == nil || e.pub == nil {
		return nil
	}
	meta := e.meta
	meta.Now = e.now().In(e.loc)
	b, err := json.Marshal(BuildPayload(ev, meta))
	if err != nil {
		metrics.IncAutomationFailed()
		return fmt.Errorf("encode automation payload: %w", err)
	}
	id := uuid.NewString()
	msg := kafka.Message{
		Topic: e.Topic(ev.Kind),
		Key:   []byte(id),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Kind.Slug())},
			{Key: "delivery_id", Value: []byte(id)},
		},
	}
	if err := e.pub.WriteMessages(ctx, msg); err != nil {
		metrics.IncAutomationFailed()
		logging.Get().Warn().Err(err).Str("topic", msg.Topic).Msg("automation publish failed")
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	metrics.IncAutomationPublished()
	return nil
}

// Close closes the underlying publisher.
func (e *Emitter) Close() error {
	if e == nil || e.pub == nil {
		return nil
	}
	return e.pub.Close()
}
