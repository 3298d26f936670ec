package notify

import (
	"cmp"
	"context"
	"fmt"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const defaultFromName = "WhatsApp Concierge"

// EmailSender delivers one operator email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single-recipient email. HTML is optional.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// sender is the From identity shared by every provider.
type sender struct {
	email string
	name  string
}

func newSender(email, name string) sender {
	return sender{email: email, name: cmp.Or(name, defaultFromName)}
}

func (s sender) address() string {
	return (&mail.Address{Name: s.name, Address: s.email}).String()
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	api    sendgridAPI
	from   sender
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(api sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{api: api, from: newSender(cfg.FromEmail, cfg.FromName), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.api == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	resp, err := s.api.SendWithContext(ctx, s.compose(msg))
	switch {
	case err != nil:
		return fmt.Errorf("notify: sendgrid: %w", err)
	case resp.StatusCode >= 400:
		s.logger.Warn("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Debug("email sent", "provider", "sendgrid", "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

func (s *SendGridSender) compose(msg EmailMessage) *sgmail.SGMailV3 {
	html := cmp.Or(msg.HTML, msg.Body)
	m := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.from.name, s.from.email),
		msg.Subject,
		sgmail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		html,
	)
	m.AddCategories("whatsapp-concierge")
	return m
}

// LogSender only logs. It stands in when email delivery is disabled.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email delivery disabled; notification dropped", "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*LogSender)(nil)
)
