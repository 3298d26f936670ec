package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging"
	"github.com/wolfman30/whatsapp-concierge/internal/notify"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// BuildOutboundMessenger creates the Cloud API reply messenger. It returns
// nil and a reason when credentials are missing.
func BuildOutboundMessenger(cfg *appconfig.Config, logger *logging.Logger) (conversation.ReplyMessenger, string) {
	if cfg == nil {
		return nil, "missing config"
	}
	return messaging.BuildReplyMessenger(messaging.ProviderSelectionConfig{
		WhatsAppToken: cfg.WhatsAppToken,
		GraphVersion:  cfg.GraphVersion,
		GraphBaseURL:  cfg.GraphBaseURL,
		SendTimeout:   cfg.SendTimeout,
	}, logger)
}

// BuildNotifier returns the operator notifier for EMAIL_PROVIDER, or nil
// when notifications are off.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader, logger *logging.Logger) (conversation.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "", "none":
		return nil, nil
	case "log":
		sender = notify.NewLogSender(logger)
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sg == nil {
			logger.Warn("SENDGRID_API_KEY missing; operator emails will only be logged")
			sender = notify.NewLogSender(logger)
		} else {
			sender = sg
		}
	case "ses":
		awsCfg, err := awsLoader.Load(ctx)
		if err != nil {
			return nil, err
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	logger.Info("operator notifications enabled", "provider", cfg.EmailProvider)
	return notify.NewService(sender, logger), nil
}
