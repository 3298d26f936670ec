package messaging

import (
	"strconv"
	"time"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging/whatsappclient"
)

// ParseInbound flattens a webhook delivery into one event per user message,
// in delivery order. Status receipts produce no events.
func ParseInbound(payload whatsappclient.WebhookPayload, receivedAt time.Time) []conversation.InboundEvent {
	var events []conversation.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				events = append(events, conversation.InboundEvent{
					RoutingKey: value.Metadata.PhoneNumberID,
					MessageID:  msg.ID,
					From:       msg.From,
					Type:       msg.Type,
					Text:       msg.Body(),
					ReceivedAt: messageTime(msg.Timestamp, receivedAt),
				})
			}
		}
	}
	return events
}

func messageTime(ts string, fallback time.Time) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return fallback.UTC()
	}
	return time.Unix(sec, 0).UTC()
}
