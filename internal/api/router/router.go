package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-concierge/internal/http/middleware"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	MessagingHandler   *messaging.Handler
	AdminTenants       *handlers.AdminTenantsHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	// WebhookLimiter throttles POST /webhook per caller; nil disables it.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/", cfg.MessagingHandler.Root)
		public.Get("/health", cfg.MessagingHandler.HealthCheck)
		public.Get("/webhook", cfg.MessagingHandler.VerifyWebhook)
		if cfg.WebhookLimiter != nil {
			public.With(httpmiddleware.RateLimit(cfg.WebhookLimiter)).Post("/webhook", cfg.MessagingHandler.Webhook)
		} else {
			public.Post("/webhook", cfg.MessagingHandler.Webhook)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminTenants != nil {
				admin.Get("/tenants", cfg.AdminTenants.ListTenants)
				admin.Post("/tenants/reload", cfg.AdminTenants.ReloadTenants)
			}
			if cfg.AdminConversations != nil {
				admin.Get("/tenants/{tenantID}/conversations/{phone}", cfg.AdminConversations.GetConversation)
				admin.Get("/conversations/{conversationID}", cfg.AdminConversations.GetConversationByID)
			}
		})
	}

	return r
}
