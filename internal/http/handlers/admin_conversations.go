package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/http/middleware"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type conversationReader interface {
	LoadState(ctx context.Context, key conversation.Key) (conversation.State, error)
	LoadHistory(ctx context.Context, key conversation.Key) ([]conversation.ChatMessage, error)
}

// AdminConversationsHandler shows the stored state of one conversation.
type AdminConversationsHandler struct {
	store  conversationReader
	logger *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(store conversationReader, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{store: store, logger: logger}
}

// ConversationDetailResponse represents one conversation's state and history.
type ConversationDetailResponse struct {
	ID            string                `json:"id"`
	TenantID      string                `json:"tenant_id"`
	Counterparty  string                `json:"counterparty"`
	HandoffActive bool                  `json:"handoff_active"`
	Booking       *BookingDraftResponse `json:"booking,omitempty"`
	Messages      []ConversationMessage `json:"messages"`
}

// BookingDraftResponse is a partially collected booking.
type BookingDraftResponse struct {
	Service string `json:"service,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ConversationMessage is one entry of the generative history.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GetConversation returns state and history for a conversation.
// GET /admin/tenants/{tenantID}/conversations/{phone}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, strings.TrimSpace(chi.URLParam(r, "tenantID")), normalizePhoneDigits(chi.URLParam(r, "phone")))
}

// GetConversationByID accepts the "wa:<tenant>:<phone>" id returned in responses.
// GET /admin/conversations/{conversationID}
func (h *AdminConversationsHandler) GetConversationByID(w http.ResponseWriter, r *http.Request) {
	tenantID, phone, ok := parseConversationID(chi.URLParam(r, "conversationID"))
	if !ok {
		jsonError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	h.render(w, r, tenantID, normalizePhoneDigits(phone))
}

func (h *AdminConversationsHandler) render(w http.ResponseWriter, r *http.Request, tenantID, phone string) {
	if tenantID == "" || phone == "" {
		jsonError(w, "tenant and phone are required", http.StatusBadRequest)
		return
	}
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok && !claims.CanAccessTenant(tenantID) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	key := conversation.Key{TenantID: tenantID, Counterparty: conversation.NormalizeBR(phone)}
	state, err := h.store.LoadState(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to load conversation state", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	history, err := h.store.LoadHistory(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to load conversation history", "error", err, "tenant_id", tenantID)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	resp := ConversationDetailResponse{
		ID:            formatConversationID(key),
		TenantID:      key.TenantID,
		Counterparty:  key.Counterparty,
		HandoffActive: state.HandoffActive,
		Messages:      make([]ConversationMessage, 0, len(history)),
	}
	if state.Booking != nil {
		resp.Booking = &BookingDraftResponse{
			Service: state.Booking.Service,
			Date:    state.Booking.Date,
			Time:    state.Booking.Time,
			Name:    state.Booking.Name,
		}
	}
	for _, msg := range history {
		resp.Messages = append(resp.Messages, ConversationMessage{Role: msg.Role, Content: msg.Content})
	}
	writeJSON(w, http.StatusOK, resp)
}

func formatConversationID(key conversation.Key) string {
	return "wa:" + key.TenantID + ":" + key.Counterparty
}

// parseConversationID splits "wa:<tenant>:<digits>".
func parseConversationID(id string) (tenantID, phone string, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != "wa" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func normalizePhoneDigits(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
