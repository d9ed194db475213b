package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stepup-auth/internal/client"
)

// deliveryRequest is the wire shape consumed by the downstream notification
// workers. The payload is plaintext here once; workers must not log it.
type deliveryRequest struct {
	MessageID   string `json:"message_id"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
	Payload     string `json:"payload"`
	RequestedAt string `json:"requested_at"`
}

// KafkaTransport publishes delivery requests to the notification topic and
// lets the downstream worker fleet perform the actual send. The produced
// message ID doubles as the delivery receipt.
type KafkaTransport struct {
	producer *client.KafkaProducer
	topic    string
	kind     Kind
}

func NewKafkaTransport(producer *client.KafkaProducer, topic string, kind Kind) *KafkaTransport {
	return &KafkaTransport{
		producer: producer,
		topic:    topic,
		kind:     kind,
	}
}

func (t *KafkaTransport) Send(ctx context.Context, destination, payload string) (string, error) {
	messageID := uuid.New().String()

	req := deliveryRequest{
		MessageID:   messageID,
		Channel:     string(t.kind),
		Destination: destination,
		Payload:     payload,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}

	value, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeliveryRejected, err)
	}

	err = t.producer.ProduceMessage(ctx, t.topic, []byte(destination), value, map[string]string{
		"channel": string(t.kind),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	return messageID, nil
}
