package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer KafkaSender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes notifications to a topic, keyed by recipient so all
// messages for one invitee land on the same partition in order.
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender creates a sender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (s *KafkaSender) Send(ctx context.Context, n Notification) error {
	const op = "notify.kafka.Send"

	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Recipient),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
