package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event is anything carrying a models.BaseEvent envelope
type Event interface {
	Type() string
}

// Producer writes order events to a single topic. Messages are keyed by
// order so every event of one order lands on the same partition.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns a synchronous producer for topic. Writes wait for all
// in-sync replicas; the short batch timeout keeps a single event from
// stalling the request that published it.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}}
}

// newMessage encodes event as JSON and tags it with its type header
func newMessage(key string, event Event, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", event.Type(), err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type())},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// PublishEvent writes one event and blocks until the brokers acknowledge it
func (p *Producer) PublishEvent(ctx context.Context, key string, event Event) error {
	msg, err := newMessage(key, event, time.Now())
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event to %s: %w", event.Type(), p.writer.Topic, err)
	}

	util.GetLogger().Debug("Event published",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("event_type", event.Type()))
	return nil
}

// Close flushes pending writes and releases broker connections
func (p *Producer) Close() error {
	return p.writer.Close()
}
