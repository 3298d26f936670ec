package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Queue carries inbound events from the webhook to the workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received delivery.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

const payloadKindInbound = "whatsapp.inbound.v1"

type queuePayload struct {
	ID    string       `json:"id"`
	Kind  string       `json:"kind"`
	Event InboundEvent `json:"event"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.Kind == "" {
		payload.Kind = payloadKindInbound
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	if payload.Kind != payloadKindInbound {
		return queuePayload{}, fmt.Errorf("conversation: unsupported payload kind %q", payload.Kind)
	}
	return payload, nil
}
