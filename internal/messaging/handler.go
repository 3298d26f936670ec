package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging/whatsappclient"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/internal/redact"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

var webhookTracer = otel.Tracer("whatsapp.internal.messaging.webhook")

const maxWebhookBody = 1 << 20

type inboundPublisher interface {
	Publish(ctx context.Context, evt conversation.InboundEvent) error
}

// HandlerConfig carries the webhook credentials.
type HandlerConfig struct {
	VerifyToken   string
	AppSecret     string
	DebugPayloads bool
}

// Handler serves the WhatsApp webhook.
type Handler struct {
	cfg       HandlerConfig
	publisher inboundPublisher
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics
	now       func() time.Time
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig, publisher inboundPublisher, logger *logging.Logger, m *metrics.ConversationMetrics) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	return &Handler{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// VerifyWebhook answers Meta's subscription handshake on GET /webhook.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		h.logger.Info("webhook verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	h.logger.Warn("webhook verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// Webhook handles POST /webhook deliveries: every user message is queued
// for the conversation engine and the delivery is acknowledged.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	status := "accepted"
	defer func() {
		h.metrics.ObserveWebhook(status, h.now().Sub(started).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		status = "bad_request"
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	if h.cfg.AppSecret != "" {
		if err := whatsappclient.VerifySignature(h.cfg.AppSecret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
			status = "unauthorized"
			h.logger.Warn("invalid webhook signature", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(err)
			return
		}
	}

	if h.cfg.DebugPayloads {
		h.logger.Debug("webhook payload", "body", redact.ScrubPII(string(body)))
	}

	var payload whatsappclient.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		status = "bad_request"
		h.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	events := ParseInbound(payload, started)
	span.SetAttributes(attribute.Int("whatsapp.webhook.messages", len(events)))
	if len(events) == 0 {
		status = "ignored"
		w.WriteHeader(http.StatusOK)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for _, evt := range events {
		if err := h.publisher.Publish(publishCtx, evt); err != nil {
			status = "publish_failed"
			h.logger.Error("failed to enqueue inbound message", "error", err, "message_id", evt.MessageID, "routing_key", evt.RoutingKey, "sender_hash", redact.HashPhone(evt.From))
			http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
			span.RecordError(err)
			return
		}
	}

	h.logger.Info("webhook accepted", "messages", len(events))
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	OK bool   `json:"ok"`
	TS string `json:"ts"`
}

// HealthCheck returns liveness with the server clock in UTC.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{OK: true, TS: h.now().UTC().Format("2006-01-02 15:04:05")})
}

// Root answers GET / for load balancer probes.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}
