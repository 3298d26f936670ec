package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging/whatsappclient"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

var graphSendTracer = otel.Tracer("whatsapp.internal.messaging.graph_send")

type textSender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) (*whatsappclient.SendResponse, error)
}

// GraphMessenger sends replies through the WhatsApp Cloud API.
type GraphMessenger struct {
	client textSender
	logger *logging.Logger
}

// NewGraphMessenger wraps a Cloud API client.
func NewGraphMessenger(client textSender, logger *logging.Logger) *GraphMessenger {
	if client == nil {
		panic("messaging: whatsapp client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GraphMessenger{client: client, logger: logger}
}

var _ conversation.ReplyMessenger = (*GraphMessenger)(nil)

// SendReply posts one text message from the tenant's number. It is attempted
// exactly once; Graph API failures keep their status and body in the error
// chain.
func (m *GraphMessenger) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	if strings.TrimSpace(reply.RoutingKey) == "" {
		return errors.New("messaging: sending phone number id required")
	}
	if strings.TrimSpace(reply.To) == "" {
		return errors.New("messaging: to required")
	}

	ctx, span := graphSendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.tenant_id", reply.TenantID),
		attribute.String("whatsapp.phone_number_id", reply.RoutingKey),
		attribute.String("whatsapp.in_reply_to", reply.InReplyTo),
	)

	resp, err := m.client.SendText(ctx, reply.RoutingKey, reply.To, reply.Body)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: whatsapp send: %w", err)
	}
	m.logger.Info("whatsapp reply sent",
		"tenant_id", reply.TenantID,
		"counterparty", reply.To,
		"in_reply_to", reply.InReplyTo,
		"message_id", resp.MessageID(),
	)
	return nil
}
