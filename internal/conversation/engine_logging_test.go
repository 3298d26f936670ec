package conversation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

func TestDebugTextIsScrubbed(t *testing.T) {
	registry, err := tenant.NewRegistry([]tenant.Config{barberTenant()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	var buf bytes.Buffer
	logger := logging.NewWithFormat("debug", "json", &buf)
	engine := NewEngine(tenant.NewResolver(registry), registry, NewMemoryStore(DefaultHistoryLimit),
		&stubGenerator{reply: "ok"}, &recordingMessenger{}, logger, WithDebugText(true))

	engine.HandleInboundMessage(context.Background(), InboundEvent{
		RoutingKey: testRoutingKey,
		MessageID:  "wamid.debug",
		From:       "5511987654321",
		Type:       MessageTypeText,
		Text:       "meu email é ana@exemplo.com",
	})

	out := buf.String()
	if !strings.Contains(out, "inbound text") {
		t.Fatalf("expected debug text log, got %s", out)
	}
	if strings.Contains(out, "ana@exemplo.com") || !strings.Contains(out, "[EMAIL]") {
		t.Fatalf("expected email to be scrubbed, got %s", out)
	}
}
