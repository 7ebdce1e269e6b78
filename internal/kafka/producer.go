package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ledger domain events to Kafka. Messages are keyed by
// user so one user's events stay ordered within a partition.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// Publish writes events in order as one batch
func (p *Producer) Publish(ctx context.Context, evs ...models.DomainEvent) error {
	if len(evs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.EventType, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
			Value: data,
			Time:  ev.Timestamp,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d messages to kafka topic %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
