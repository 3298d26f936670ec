package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging/whatsappclient"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []conversation.InboundEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, evt conversation.InboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("whatsappclient", "testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func newTestHandler(cfg HandlerConfig, pub *mockPublisher) *Handler {
	h := NewHandler(cfg, pub, logging.Default(), nil)
	h.now = func() time.Time { return time.Date(2025, 6, 8, 21, 0, 0, 0, time.UTC) }
	return h
}

func TestVerifyWebhook(t *testing.T) {
	h := newTestHandler(HandlerConfig{VerifyToken: "meu-token"}, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=meu-token&hub.challenge=1158201444", nil)
	rr := httptest.NewRecorder()
	h.VerifyWebhook(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "1158201444" {
		t.Fatalf("expected challenge echo, got %d %q", rr.Code, rr.Body.String())
	}

	for _, query := range []string{
		"hub.mode=subscribe&hub.verify_token=errado&hub.challenge=1",
		"hub.mode=unsubscribe&hub.verify_token=meu-token&hub.challenge=1",
		"",
	} {
		rr := httptest.NewRecorder()
		h.VerifyWebhook(rr, httptest.NewRequest(http.MethodGet, "/webhook?"+query, nil))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("query %q: expected 403, got %d", query, rr.Code)
		}
	}
}

func TestVerifyWebhookRequiresConfiguredToken(t *testing.T) {
	h := newTestHandler(HandlerConfig{}, &mockPublisher{})
	rr := httptest.NewRecorder()
	h.VerifyWebhook(rr, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without configured token, got %d", rr.Code)
	}
}

func TestWebhookPublishesEveryMessage(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(HandlerConfig{}, pub)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(loadFixture(t, "webhook_text.json"))))
	rr := httptest.NewRecorder()
	h.Webhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(pub.events))
	}
	first := pub.events[0]
	if first.RoutingKey != "106540352242922" || first.From != "551187654321" || first.Type != "text" || first.Text != "Quero agendar um corte" {
		t.Fatalf("unexpected first event %#v", first)
	}
	if first.ReceivedAt.Unix() != 1749416383 {
		t.Fatalf("expected platform timestamp, got %v", first.ReceivedAt)
	}
	if second := pub.events[1]; second.Type != "image" || second.Text != "" {
		t.Fatalf("unexpected second event %#v", second)
	}
}

func TestWebhookIgnoresStatusOnlyDeliveries(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(HandlerConfig{}, pub)

	rr := httptest.NewRecorder()
	h.Webhook(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(loadFixture(t, "webhook_status.json")))))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected nothing published, got %d", len(pub.events))
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(HandlerConfig{}, &mockPublisher{})
	rr := httptest.NewRecorder()
	h.Webhook(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{broken")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWebhookSignature(t *testing.T) {
	body := loadFixture(t, "webhook_text.json")
	pub := &mockPublisher{}
	h := newTestHandler(HandlerConfig{AppSecret: "app-secret"}, pub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	h.Webhook(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rr.Code)
	}
	if len(pub.events) != 0 {
		t.Fatalf("nothing must be published on bad signature")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", whatsappclient.Sign("app-secret", body))
	h.Webhook(rr, req)
	if rr.Code != http.StatusOK || len(pub.events) != 2 {
		t.Fatalf("expected signed delivery accepted, got %d with %d events", rr.Code, len(pub.events))
	}
}

func TestWebhookPublishFailureAsksForRedelivery(t *testing.T) {
	h := newTestHandler(HandlerConfig{}, &mockPublisher{err: errors.New("queue full")})
	rr := httptest.NewRecorder()
	h.Webhook(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(loadFixture(t, "webhook_text.json")))))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(HandlerConfig{}, &mockPublisher{})
	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["ts"] != "2025-06-08 21:00:00" {
		t.Fatalf("unexpected health body %#v", body)
	}

	rr = httptest.NewRecorder()
	h.Root(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Body.String() != "OK" {
		t.Fatalf("unexpected root body %q", rr.Body.String())
	}
}

func TestHealthCheckReportsUTC(t *testing.T) {
	h := newTestHandler(HandlerConfig{}, &mockPublisher{})
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	h.now = func() time.Time { return time.Date(2025, 6, 8, 18, 0, 0, 0, saoPaulo) }

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ts"] != "2025-06-08 21:00:00" {
		t.Fatalf("expected UTC timestamp, got %#v", body["ts"])
	}
}

func TestParseInboundFallsBackToReceiptTime(t *testing.T) {
	received := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	payload := whatsappclient.WebhookPayload{Entry: []whatsappclient.WebhookEntry{{
		Changes: []whatsappclient.WebhookChange{{
			Value: whatsappclient.ChangeValue{
				Metadata: whatsappclient.Metadata{PhoneNumberID: "pn"},
				Messages: []whatsappclient.InboundMessage{{ID: "wamid.1", From: "5511987654321", Type: "audio"}},
			},
		}},
	}}}
	events := ParseInbound(payload, received)
	if len(events) != 1 || !events[0].ReceivedAt.Equal(received) || events[0].RoutingKey != "pn" {
		t.Fatalf("unexpected events %#v", events)
	}
}

type stubTextSender struct {
	calls int
	last  [3]string
	err   error
}

func (s *stubTextSender) SendText(_ context.Context, phoneNumberID, to, body string) (*whatsappclient.SendResponse, error) {
	s.calls++
	s.last = [3]string{phoneNumberID, to, body}
	if s.err != nil {
		return nil, s.err
	}
	return &whatsappclient.SendResponse{}, nil
}

func TestGraphMessengerSendReply(t *testing.T) {
	sender := &stubTextSender{}
	m := NewGraphMessenger(sender, logging.Default())

	err := m.SendReply(context.Background(), conversation.OutboundReply{TenantID: "barber", RoutingKey: "pn", To: "5511987654321", Body: "oi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.last != [3]string{"pn", "5511987654321", "oi"} {
		t.Fatalf("unexpected call %#v", sender.last)
	}

	if err := m.SendReply(context.Background(), conversation.OutboundReply{To: "5511987654321", Body: "oi"}); err == nil {
		t.Fatalf("expected error without sending number")
	}
	if sender.calls != 1 {
		t.Fatalf("invalid replies must not reach the API")
	}
}

func TestGraphMessengerKeepsAPIErrorChain(t *testing.T) {
	apiErr := &whatsappclient.APIError{StatusCode: http.StatusUnauthorized, Body: `{"error":{"code":190}}`}
	m := NewGraphMessenger(&stubTextSender{err: apiErr}, logging.Default())

	err := m.SendReply(context.Background(), conversation.OutboundReply{RoutingKey: "pn", To: "5511987654321", Body: "oi"})
	var got *whatsappclient.APIError
	if !errors.As(err, &got) || got.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected api error in chain, got %v", err)
	}
}

func TestBuildReplyMessenger(t *testing.T) {
	m, reason := BuildReplyMessenger(ProviderSelectionConfig{}, logging.Default())
	if m != nil || reason == "" {
		t.Fatalf("expected missing token reason, got %v %q", m, reason)
	}
	m, reason = BuildReplyMessenger(ProviderSelectionConfig{WhatsAppToken: "token", GraphVersion: "v22.0"}, logging.Default())
	if m == nil || reason != "" {
		t.Fatalf("expected messenger, got %v %q", m, reason)
	}
}
