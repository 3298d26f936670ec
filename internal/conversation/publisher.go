package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous orchestration.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues one inbound event.
func (p *Publisher) Publish(ctx context.Context, evt InboundEvent) error {
	payload, body, err := encodePayload(queuePayload{Event: evt})
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue inbound message: %w", err)
	}
	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "message_id", evt.MessageID)
	return nil
}
