package conversation

import "context"

// ReplyMessenger delivers replies back to the counterparty.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push a message to the user.
type OutboundReply struct {
	TenantID   string
	RoutingKey string // sending account (phone_number_id)
	To         string
	Body       string
	InReplyTo  string
}

// Notifier alerts tenant operators about turns that need a human.
type Notifier interface {
	NotifyBookingRequest(ctx context.Context, notice BookingNotice) error
	NotifyHandoff(ctx context.Context, notice HandoffNotice) error
}

// BookingNotice describes a completed booking request.
type BookingNotice struct {
	TenantID     string
	TenantName   string
	Recipients   []string
	Counterparty string
	Draft        BookingDraft
}

// HandoffNotice describes a conversation handed to a human.
type HandoffNotice struct {
	TenantID     string
	TenantName   string
	Recipients   []string
	Counterparty string
	LastMessage  string
}
