package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

var fallbackTracer = otel.Tracer("whatsapp.internal.conversation.fallback")

// FallbackConfig selects the model and sampling for generated replies.
type FallbackConfig struct {
	Provider    string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// FallbackGenerator answers free-form turns with a generative backend,
// grounded on the tenant's approved facts and the recent history window.
type FallbackGenerator struct {
	client  LLMClient
	store   Store
	cfg     FallbackConfig
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

func NewFallbackGenerator(client LLMClient, store Store, cfg FallbackConfig, logger *logging.Logger, m *metrics.ConversationMetrics) *FallbackGenerator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Provider == "" {
		cfg.Provider = "llm"
	}
	return &FallbackGenerator{client: client, store: store, cfg: cfg, logger: logger, metrics: m}
}

// Generate returns a reply to text. A backend failure yields a
// *GenerationError and leaves history untouched; on success the user turn
// and the reply are appended to history.
func (g *FallbackGenerator) Generate(ctx context.Context, key Key, cfg tenant.Config, text string) (string, error) {
	ctx, span := fallbackTracer.Start(ctx, "conversation.fallback.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.tenant_id", key.TenantID),
		attribute.String("whatsapp.llm.provider", g.cfg.Provider),
	)

	history, err := g.store.LoadHistory(ctx, key)
	if err != nil {
		g.logger.Warn("history unavailable for fallback", "tenant_id", key.TenantID, "error", err)
		history = nil
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})

	started := time.Now()
	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.cfg.Model,
		System:      []string{SystemPrompt(cfg)},
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		g.metrics.ObserveGeneration(g.cfg.Provider, "error", time.Since(started).Seconds())
		return "", toGenerationError(g.cfg.Provider, err)
	}
	g.metrics.ObserveGeneration(g.cfg.Provider, "ok", time.Since(started).Seconds())

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		reply = replyEmptyGenerated
	}

	if err := g.store.AppendHistory(ctx, key,
		ChatMessage{Role: ChatRoleUser, Content: text},
		ChatMessage{Role: ChatRoleAssistant, Content: reply},
	); err != nil {
		g.logger.Warn("failed to append history", "tenant_id", key.TenantID, "error", err)
	}
	return reply, nil
}

func toGenerationError(provider string, err error) *GenerationError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return &GenerationError{Provider: pe.Provider, Status: pe.StatusCode, Body: pe.Body, Err: err}
	}
	return &GenerationError{Provider: provider, Err: err}
}

// SystemPrompt renders the persona preamble listing only tenant-approved facts.
func SystemPrompt(cfg tenant.Config) string {
	var b strings.Builder
	b.WriteString("Você é um atendente do " + cfg.Name + ".\n\n")
	b.WriteString("Informações oficiais (NUNCA invente outras):\n")
	b.WriteString("- Nome: " + cfg.Name + "\n")
	b.WriteString("- Descrição: " + cfg.ShortDescription + "\n")
	b.WriteString("- Endereço: " + cfg.Address + "\n")
	b.WriteString("- Link do endereço (se pedir mapa): " + cfg.AddressLink + "\n")
	b.WriteString("- Horário: " + cfg.Hours + "\n")
	b.WriteString("- Política (abrir mais cedo): " + cfg.Policies.EarlyOpen + "\n")
	b.WriteString("- Política (fim de semana): " + cfg.Policies.Weekend + "\n\n")

	b.WriteString("Catálogo (se perguntarem preço/serviço, peça detalhes se necessário):\n")
	for _, svc := range cfg.Catalog.Services {
		b.WriteString("- " + svc.Name)
		if svc.HasPrice() {
			b.WriteString(": R$ " + strings.TrimSpace(svc.Price))
		}
		b.WriteString("\n")
	}
	if cfg.Catalog.Notes != "" {
		b.WriteString("Observação: " + cfg.Catalog.Notes + "\n")
	}

	b.WriteString("\nRegras:\n")
	b.WriteString("- Endereço/horário: use APENAS os oficiais.\n")
	b.WriteString("- Nunca invente preços, telefones, links, promoções ou disponibilidade.\n")
	b.WriteString("- Se o usuário pedir preço e você não tiver o valor, peça o serviço exato e diga que vai confirmar.\n")
	b.WriteString("- Seja curto, claro e amigável.\n")
	b.WriteString("- Se o usuário pedir humano, responda que vai chamar um atendente e não continue com IA.\n")
	return b.String()
}
