package conversation

import "time"

// Key identifies one conversation: a tenant talking to one counterparty.
type Key struct {
	TenantID     string
	Counterparty string
}

// String renders the key as "tenant:counterparty".
func (k Key) String() string {
	return k.TenantID + ":" + k.Counterparty
}

// State is the mutable per-conversation record.
type State struct {
	HandoffActive bool          `json:"handoffActive" dynamodbav:"handoffActive"`
	Booking       *BookingDraft `json:"booking,omitempty" dynamodbav:"booking,omitempty"`
}

func (s State) clone() State {
	out := State{HandoffActive: s.HandoffActive}
	if s.Booking != nil {
		draft := *s.Booking
		out.Booking = &draft
	}
	return out
}

// BookingDraft accumulates the fields of an appointment request.
type BookingDraft struct {
	Service string `json:"service,omitempty" dynamodbav:"service,omitempty"`
	Date    string `json:"date,omitempty" dynamodbav:"date,omitempty"`
	Time    string `json:"time,omitempty" dynamodbav:"time,omitempty"`
	Name    string `json:"name,omitempty" dynamodbav:"name,omitempty"`
}

// HistoryEntry is one user or assistant turn kept as generative context.
type HistoryEntry = ChatMessage

// Inbound message types we distinguish.
const (
	MessageTypeText = "text"
)

// InboundEvent is one message delivered by the messaging platform.
type InboundEvent struct {
	RoutingKey string    `json:"routingKey"` // receiving account (WhatsApp phone_number_id)
	MessageID  string    `json:"messageId"`
	From       string    `json:"from"`
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}
