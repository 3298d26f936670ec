package messaging

import (
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging/whatsappclient"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// ProviderSelectionConfig captures the credentials required to build the outbound messenger.
type ProviderSelectionConfig struct {
	WhatsAppToken string
	GraphVersion  string
	GraphBaseURL  string
	SendTimeout   time.Duration
}

// BuildReplyMessenger instantiates the Cloud API messenger. It returns nil
// and a reason when credentials are missing; the engine then reports every
// turn as a configuration error instead of sending.
func BuildReplyMessenger(cfg ProviderSelectionConfig, logger *logging.Logger) (conversation.ReplyMessenger, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.WhatsAppToken) == "" {
		return nil, "WHATSAPP_TOKEN missing"
	}
	client, err := whatsappclient.New(whatsappclient.Config{
		Token:        cfg.WhatsAppToken,
		GraphVersion: cfg.GraphVersion,
		BaseURL:      cfg.GraphBaseURL,
		Timeout:      cfg.SendTimeout,
		Logger:       logger.Logger,
	})
	if err != nil {
		return nil, err.Error()
	}
	return NewGraphMessenger(client, logger), ""
}
