package events

import (
	"context"
	"encoding/json"
	"fmt"

	"stepup-auth/internal/client"
)

// KafkaSink publishes security events to the configured topic, keyed by
// session ID so events for one session stay ordered within a partition.
type KafkaSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaSink(producer *client.KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
	}
}

func (s *KafkaSink) Write(ctx context.Context, event SecurityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}

	key := event.SessionID
	if key == "" {
		key = event.ID
	}

	return s.producer.ProduceMessage(ctx, s.topic, []byte(key), payload, map[string]string{
		"event_type": string(event.Type),
	})
}
