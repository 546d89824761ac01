package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes events as JSON to a topic consumed by the
// delivery service. Messages are keyed by patient so a patient's
// notifications stay ordered within a partition.
type KafkaDispatcher struct {
	writer messageWriter
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, evt Event) error {
	evt = prepare(evt)
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.PatientID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "template_id", Value: []byte(evt.TemplateID())},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.TemplateID(), err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
