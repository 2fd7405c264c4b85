package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every trace of a snapshot as one message keyed by the
// trace id.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 100 * time.Millisecond,
		},
		topic: topic,
	}
}

func (k *KafkaSink) Name() string {
	return "kafka:" + k.topic
}

func (k *KafkaSink) Write(ctx context.Context, traces []telemetry.Trace) error {
	if len(traces) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(traces))
	for i := range traces {
		b, err := json.Marshal(traces[i])
		if err != nil {
			return fmt.Errorf("marshal trace %s: %w", traces[i].ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(traces[i].ID),
			Value: b,
			Headers: []kafka.Header{
				{Key: "engine", Value: []byte(traces[i].Engine)},
				{Key: "provider", Value: []byte(traces[i].Provider)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka snapshot: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
