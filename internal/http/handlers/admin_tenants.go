package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfman30/whatsapp-concierge/internal/http/middleware"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type tenantLister interface {
	AllTenants() []tenant.Config
}

type tenantReloader interface {
	Reload(ctx context.Context) ([]tenant.Config, error)
}

// AdminTenantsHandler exposes the loaded tenant configuration.
type AdminTenantsHandler struct {
	tenants  tenantLister
	reloader tenantReloader
	logger   *logging.Logger
}

// NewAdminTenantsHandler creates a new admin tenants handler. reloader may be nil.
func NewAdminTenantsHandler(tenants tenantLister, reloader tenantReloader, logger *logging.Logger) *AdminTenantsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTenantsHandler{tenants: tenants, reloader: reloader, logger: logger}
}

// TenantSummary is the admin view of one tenant.
type TenantSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	PhoneNumberID  string   `json:"phone_number_id,omitempty"`
	HandoffEnabled bool     `json:"handoff_enabled"`
	BookingEnabled bool     `json:"booking_enabled"`
	BookingFields  []string `json:"booking_fields,omitempty"`
	Services       []string `json:"services"`
	NotifyEmails   int      `json:"notify_emails"`
}

// TenantsResponse lists tenants in declaration order.
type TenantsResponse struct {
	Tenants []TenantSummary `json:"tenants"`
	Total   int             `json:"total"`
}

// ListTenants returns the tenants the caller may see.
// GET /admin/tenants
func (h *AdminTenantsHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.AdminClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.visible(claims, h.tenants.AllTenants()))
}

// ReloadTenants re-reads the tenant source and swaps it in.
// POST /admin/tenants/reload
func (h *AdminTenantsHandler) ReloadTenants(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		jsonError(w, "reload not configured", http.StatusNotImplemented)
		return
	}
	claims, _ := middleware.AdminClaimsFromContext(r.Context())
	if len(claims.Tenants) > 0 {
		jsonError(w, "reload requires an unscoped token", http.StatusForbidden)
		return
	}
	cfgs, err := h.reloader.Reload(r.Context())
	if err != nil {
		h.logger.Error("tenant reload failed", "error", err)
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.logger.Info("tenants reloaded", "count", len(cfgs), "subject", claims.Subject)
	writeJSON(w, http.StatusOK, h.visible(claims, cfgs))
}

func (h *AdminTenantsHandler) visible(claims middleware.AdminClaims, cfgs []tenant.Config) TenantsResponse {
	resp := TenantsResponse{Tenants: []TenantSummary{}}
	for _, cfg := range cfgs {
		if !claims.CanAccessTenant(cfg.ID) {
			continue
		}
		resp.Tenants = append(resp.Tenants, TenantSummary{
			ID:             cfg.ID,
			Name:           cfg.Name,
			PhoneNumberID:  cfg.RoutingKey(),
			HandoffEnabled: cfg.Handoff.Enabled,
			BookingEnabled: cfg.Booking.Enabled,
			BookingFields:  cfg.Booking.Require,
			Services:       cfg.ServiceNames(),
			NotifyEmails:   len(cfg.NotifyEmails),
		})
	}
	resp.Total = len(resp.Tenants)
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
