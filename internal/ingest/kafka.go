package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
)

const (
	kafkaMinBytes = 1
	kafkaMaxBytes = 10_000_000 // 10MB
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader returns a consumer-group reader for the events topic.
// Offsets are committed manually after each message is handled.
func NewKafkaReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: kafkaMinBytes,
		MaxBytes: kafkaMaxBytes,
		MaxWait:  500 * time.Millisecond,
	})
}

// KafkaConsumer feeds events from a Kafka topic to a Handler. Every message
// is committed once handled, including undecodable ones and events dropped
// because the option store was unavailable.
type KafkaConsumer struct {
	reader MessageReader
	handle Handler
}

func NewKafkaConsumer(r MessageReader, h Handler) *KafkaConsumer {
	return &KafkaConsumer{reader: r, handle: h}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	log := logging.Component("ingest.kafka")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		ev, err := Decode(msg.Value)
		if err != nil {
			metrics.IncIngestError("kafka")
			log.Warn().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("skipping undecodable message")
		} else if err := c.handle(ctx, ev); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Str("event", ev.Kind.String()).Msg("event dropped")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}
