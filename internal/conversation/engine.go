package conversation

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/internal/redact"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

var engineTracer = otel.Tracer("whatsapp.internal.conversation.engine")

// TenantResolver maps an inbound routing key to a tenant id.
type TenantResolver interface {
	Resolve(routingKey string) (string, bool)
}

// ReplyGenerator produces free-text answers for turns no rule handles.
type ReplyGenerator interface {
	Generate(ctx context.Context, key Key, cfg tenant.Config, text string) (string, error)
}

// Engine turns inbound messages into at most one reply each.
type Engine struct {
	ledger    *Ledger
	resolver  TenantResolver
	tenants   tenant.Source
	store     Store
	generator ReplyGenerator
	messenger ReplyMessenger
	notifier  Notifier
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics
	debugText bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLedger replaces the default dedupe ledger.
func WithLedger(l *Ledger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.ledger = l
		}
	}
}

// WithNotifier enables operator alerts for bookings and handoffs.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithEngineMetrics records per-turn metrics.
func WithEngineMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDebugText logs inbound message bodies at debug level.
func WithDebugText(enabled bool) EngineOption {
	return func(e *Engine) {
		e.debugText = enabled
	}
}

// NewEngine wires the orchestration engine. generator and messenger may be
// nil; turns that need them fail with ErrConfigurationMissing.
func NewEngine(resolver TenantResolver, tenants tenant.Source, store Store, generator ReplyGenerator, messenger ReplyMessenger, logger *logging.Logger, opts ...EngineOption) *Engine {
	if resolver == nil {
		panic("conversation: tenant resolver cannot be nil")
	}
	if tenants == nil {
		panic("conversation: tenant source cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		ledger:    NewLedger(DefaultLedgerCapacity),
		resolver:  resolver,
		tenants:   tenants,
		store:     store,
		generator: generator,
		messenger: messenger,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		m := e.metrics
		e.ledger.OnReset(m.ObserveLedgerReset)
	}
	return e
}

// HandleInboundMessage processes one delivery. It never returns an error and
// never panics; failures are logged with the conversation identifiers.
func (e *Engine) HandleInboundMessage(ctx context.Context, evt InboundEvent) {
	ctx, span := engineTracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.message_id", evt.MessageID))

	// Must run before any I/O so concurrent redeliveries collapse early.
	if e.ledger.Seen(evt.MessageID) {
		e.metrics.ObserveInbound("duplicate")
		e.logger.Debug("duplicate delivery dropped", "message_id", evt.MessageID)
		return
	}

	var tenantID string
	defer func() {
		if r := recover(); r != nil {
			e.metrics.ObserveError("panic")
			e.logger.ForConversation(tenantID, NormalizeBR(evt.From), evt.MessageID).
				Error("panic while handling inbound message", "panic", fmt.Sprint(r))
		}
	}()

	outcome, err := e.process(ctx, evt, &tenantID)
	span.SetAttributes(attribute.String("whatsapp.tenant_id", tenantID))
	if err != nil {
		kind := errorKind(err)
		span.RecordError(err)
		e.metrics.ObserveError(kind)
		e.metrics.ObserveInbound(kind)
		e.logger.ForConversation(tenantID, NormalizeBR(evt.From), evt.MessageID).
			Error("inbound message failed", "kind", kind, "error", err)
		return
	}
	e.metrics.ObserveInbound(outcome)
}

func (e *Engine) process(ctx context.Context, evt InboundEvent, tenantID *string) (string, error) {
	counterparty := NormalizeBR(evt.From)
	if counterparty == "" {
		e.logger.Warn("inbound message without sender dropped", "message_id", evt.MessageID)
		return "invalid_sender", nil
	}

	id, ok := e.resolver.Resolve(evt.RoutingKey)
	if !ok {
		return "", fmt.Errorf("%w: routing key %q", ErrUnknownTenant, evt.RoutingKey)
	}
	*tenantID = id

	cfg, err := e.tenants.ConfigFor(id)
	if err != nil {
		return "", fmt.Errorf("%w: tenant %s: %v", ErrConfigurationMissing, id, err)
	}
	if e.messenger == nil {
		return "", fmt.Errorf("%w: no outbound messenger", ErrConfigurationMissing)
	}
	routingKey := strings.TrimSpace(evt.RoutingKey)
	if routingKey == "" {
		routingKey = cfg.RoutingKey()
	}
	if routingKey == "" {
		return "", fmt.Errorf("%w: no sending account for tenant %s", ErrConfigurationMissing, id)
	}

	key := Key{TenantID: id, Counterparty: counterparty}
	log := e.logger.ForConversation(id, counterparty, evt.MessageID)
	reply := OutboundReply{TenantID: id, RoutingKey: routingKey, To: counterparty, InReplyTo: evt.MessageID}

	text := strings.TrimSpace(evt.Text)
	if evt.Type != MessageTypeText || text == "" {
		reply.Body = replyNonText
		if err := e.send(ctx, reply); err != nil {
			return "", err
		}
		return "non_text", nil
	}
	if e.debugText {
		log.Debug("inbound text", "type", evt.Type, "text", redact.ScrubPII(text))
	}

	state, err := e.store.LoadState(ctx, key)
	if err != nil {
		return "", fmt.Errorf("conversation: load state: %w", err)
	}

	t, err := e.decide(ctx, key, cfg, state, text)
	if err != nil {
		return "", err
	}
	e.metrics.ObserveRoute(id, t.route)
	log.Info("turn routed", "route", t.route)

	if t.save {
		if err := e.store.SaveState(ctx, key, t.next); err != nil {
			log.Warn("failed to persist conversation state", "error", err)
		}
	}

	reply.Body = t.reply
	if err := e.send(ctx, reply); err != nil {
		return "", err
	}

	if t.notify != nil && e.notifier != nil && len(cfg.NotifyEmails) > 0 {
		if err := t.notify(ctx, e.notifier); err != nil {
			log.Warn("operator notification failed", "route", t.route, "error", err)
		}
	}
	return "handled", nil
}

func (e *Engine) send(ctx context.Context, reply OutboundReply) error {
	if err := e.messenger.SendReply(ctx, reply); err != nil {
		e.metrics.ObserveOutbound(reply.TenantID, "failed")
		return newDispatchError(err)
	}
	e.metrics.ObserveOutbound(reply.TenantID, "sent")
	return nil
}

// turn is the single decision taken for one inbound text.
type turn struct {
	route  string
	reply  string
	next   State
	save   bool
	notify func(context.Context, Notifier) error
}

func (e *Engine) decide(ctx context.Context, key Key, cfg tenant.Config, state State, text string) (turn, error) {
	intent := ResolveIntent(text, cfg)

	switch {
	case intent == IntentReset:
		return turn{route: "reset", reply: resetText(cfg), next: State{}, save: true}, nil
	case intent == IntentResume:
		next := state.clone()
		next.HandoffActive = false
		return turn{route: "resume", reply: resumeText(cfg), next: next, save: true}, nil
	case state.HandoffActive && cfg.Handoff.Enabled:
		return turn{route: "handoff_active", reply: replyHandoffActive}, nil
	case state.Booking != nil && bookingEnabled(cfg):
		return e.continueBooking(key, cfg, state, text), nil
	}

	switch intent {
	case IntentMenu:
		return turn{route: "menu", reply: menuText(cfg)}, nil
	case IntentHandoff:
		if cfg.Handoff.Enabled {
			return handoffTurn("handoff", key, cfg, state, text), nil
		}
	case IntentAddress:
		return turn{route: "address", reply: addressText(cfg)}, nil
	case IntentHours:
		return turn{route: "hours", reply: hoursText(cfg)}, nil
	case IntentPrice:
		if svc, ok := ExtractService(text, cfg.Catalog.Services); ok && svc.HasPrice() {
			return turn{route: "price", reply: priceText(svc)}, nil
		}
		return turn{route: "price_catalog", reply: catalogText(cfg)}, nil
	case IntentBooking:
		// The draft starts even when booking is off; only its continuation is gated.
		next := state.clone()
		next.Booking = &BookingDraft{}
		return turn{route: "booking_start", reply: bookingStartText(cfg), next: next, save: true}, nil
	case IntentOrder:
		return turn{route: "order", reply: replyOrder}, nil
	}

	lower := strings.ToLower(text)
	if cfg.Policies.EarlyOpen != "" && asksEarlyOpening(lower) {
		return turn{route: "policy_early_open", reply: cfg.Policies.EarlyOpen}, nil
	}
	if cfg.Policies.Weekend != "" && asksWeekend(lower) {
		return turn{route: "policy_weekend", reply: cfg.Policies.Weekend}, nil
	}

	if e.generator == nil {
		return turn{}, fmt.Errorf("%w: no reply generator", ErrConfigurationMissing)
	}
	generated, err := e.generator.Generate(ctx, key, cfg, text)
	if err != nil {
		return turn{}, err
	}
	// A request for a human wins over whatever was generated, even with the
	// handoff intent disabled.
	if MentionsHandoff(text) {
		return handoffTurn("handoff_override", key, cfg, state, text), nil
	}
	return turn{route: "fallback", reply: generated}, nil
}

func (e *Engine) continueBooking(key Key, cfg tenant.Config, state State, text string) turn {
	draft, filled := FillBooking(*state.Booking, text, cfg.Catalog.Services)
	if filled != "" {
		e.logger.Debug("booking field filled", "tenant_id", key.TenantID, "field", filled)
	}

	next := state.clone()
	missing := draft.MissingFields(cfg.Booking.Require)
	if len(missing) == 0 {
		next.Booking = nil
		notice := BookingNotice{
			TenantID:     cfg.ID,
			TenantName:   cfg.Name,
			Recipients:   cfg.NotifyEmails,
			Counterparty: key.Counterparty,
			Draft:        draft,
		}
		return turn{
			route: "booking_complete",
			reply: bookingSummary(draft, cfg),
			next:  next,
			save:  true,
			notify: func(ctx context.Context, n Notifier) error {
				return n.NotifyBookingRequest(ctx, notice)
			},
		}
	}

	next.Booking = &draft
	return turn{route: "booking_prompt", reply: bookingPrompt(missing, cfg), next: next, save: true}
}

func handoffTurn(route string, key Key, cfg tenant.Config, state State, text string) turn {
	next := state.clone()
	next.HandoffActive = true
	next.Booking = nil
	notice := HandoffNotice{
		TenantID:     cfg.ID,
		TenantName:   cfg.Name,
		Recipients:   cfg.NotifyEmails,
		Counterparty: key.Counterparty,
		LastMessage:  text,
	}
	return turn{
		route: route,
		reply: cmp.Or(strings.TrimSpace(cfg.Handoff.Message), replyHandoffDefault),
		next:  next,
		save:  true,
		notify: func(ctx context.Context, n Notifier) error {
			return n.NotifyHandoff(ctx, notice)
		},
	}
}

func bookingEnabled(cfg tenant.Config) bool {
	return cfg.Booking.Enabled && len(cfg.Booking.Require) > 0
}
