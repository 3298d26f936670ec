package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const testRoutingKey = "pn-barber"

func barberTenant() tenant.Config {
	return tenant.Config{
		ID:               "barber",
		PhoneNumberID:    testRoutingKey,
		Name:             "Barbearia Central",
		ShortDescription: "Barbearia no centro da cidade.",
		Address:          "Rua das Flores, 10",
		AddressLink:      "https://maps.example.com/central",
		Hours:            "Seg a Sex 9h–19h",
		Policies: tenant.Policies{
			EarlyOpen: "Abrimos às 9h, não conseguimos antes.",
			Weekend:   "Aos sábados só com agendamento.",
		},
		Handoff: tenant.Handoff{Enabled: true, Message: "Vou chamar um atendente 👤"},
		Catalog: tenant.Catalog{
			Services: []tenant.Service{
				{Key: "corte", Name: "Corte de cabelo", Price: "35"},
				{Key: "barba", Name: "Barba"},
				{Key: "sobrancelha", Name: "Sobrancelha", Price: "15"},
			},
			Notes: "Valores podem variar.",
		},
		Booking: tenant.Booking{
			Enabled:     true,
			Require:     []string{tenant.FieldService, tenant.FieldDate, tenant.FieldTime, tenant.FieldName},
			ConfirmText: "Vamos confirmar em breve.",
		},
	}
}

func bakeryTenant() tenant.Config {
	return tenant.Config{
		ID:            "bakery",
		PhoneNumberID: "pn-bakery",
		Name:          "Padaria Sol",
		Address:       "Av. Brasil, 200",
		Hours:         "Todos os dias 6h–20h",
		Handoff:       tenant.Handoff{Enabled: true, Message: "Um atendente já fala com você."},
	}
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []OutboundReply
	err     error
}

func (m *recordingMessenger) SendReply(_ context.Context, reply OutboundReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply)
	return m.err
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

func (m *recordingMessenger) last(t *testing.T) OutboundReply {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		t.Fatalf("expected at least one reply")
	}
	return m.replies[len(m.replies)-1]
}

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, _ Key, _ tenant.Config, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	bookings []BookingNotice
	handoffs []HandoffNotice
}

func (n *recordingNotifier) NotifyBookingRequest(_ context.Context, notice BookingNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, notice)
	return nil
}

func (n *recordingNotifier) NotifyHandoff(_ context.Context, notice HandoffNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handoffs = append(n.handoffs, notice)
	return nil
}

type engineFixture struct {
	engine    *Engine
	messenger *recordingMessenger
	generator *stubGenerator
	store     *MemoryStore
	registry  *tenant.Registry
	seq       int
}

func newEngineFixture(t *testing.T, tenants []tenant.Config, opts ...EngineOption) *engineFixture {
	t.Helper()
	registry, err := tenant.NewRegistry(tenants)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	f := &engineFixture{
		messenger: &recordingMessenger{},
		generator: &stubGenerator{reply: "resposta gerada"},
		store:     NewMemoryStore(DefaultHistoryLimit),
		registry:  registry,
	}
	f.engine = NewEngine(tenant.NewResolver(registry), registry, f.store, f.generator, f.messenger, logging.Default(), opts...)
	return f
}

// say delivers text from the default counterparty and returns the reply body.
func (f *engineFixture) say(t *testing.T, text string) string {
	t.Helper()
	f.seq++
	before := f.messenger.count()
	f.engine.HandleInboundMessage(context.Background(), InboundEvent{
		RoutingKey: testRoutingKey,
		MessageID:  fmt.Sprintf("wamid.%d", f.seq),
		From:       "5511987654321",
		Type:       MessageTypeText,
		Text:       text,
	})
	if f.messenger.count() != before+1 {
		t.Fatalf("expected exactly one reply to %q, got %d", text, f.messenger.count()-before)
	}
	return f.messenger.last(t).Body
}

func (f *engineFixture) state(t *testing.T) State {
	t.Helper()
	state, err := f.store.LoadState(context.Background(), Key{TenantID: "barber", Counterparty: "5511987654321"})
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return state
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
