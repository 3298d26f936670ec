package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Service emails tenant operators about booking requests and handoffs.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewLogSender(logger)
	}
	return &Service{email: email, logger: logger}
}

var _ conversation.Notifier = (*Service)(nil)

// NotifyBookingRequest sends the collected booking fields to every recipient.
func (s *Service) NotifyBookingRequest(ctx context.Context, notice conversation.BookingNotice) error {
	subject := fmt.Sprintf("Novo pedido de agendamento - %s", notice.TenantName)
	var body strings.Builder
	fmt.Fprintf(&body, "Novo pedido de agendamento recebido pelo WhatsApp.\n\n")
	fmt.Fprintf(&body, "Contato: +%s\n", notice.Counterparty)
	fmt.Fprintf(&body, "Nome: %s\n", orUnknown(notice.Draft.Name))
	fmt.Fprintf(&body, "Serviço: %s\n", orUnknown(notice.Draft.Service))
	fmt.Fprintf(&body, "Data: %s\n", orUnknown(notice.Draft.Date))
	fmt.Fprintf(&body, "Horário: %s\n", orUnknown(notice.Draft.Time))

	return s.fanOut(ctx, notice.TenantID, notice.Recipients, subject, body.String())
}

// NotifyHandoff tells operators a customer is waiting for a human.
func (s *Service) NotifyHandoff(ctx context.Context, notice conversation.HandoffNotice) error {
	subject := fmt.Sprintf("Cliente aguardando atendente - %s", notice.TenantName)
	body := fmt.Sprintf("O contato +%s pediu para falar com um atendente.\n\nÚltima mensagem:\n%s\n",
		notice.Counterparty, notice.LastMessage)

	return s.fanOut(ctx, notice.TenantID, notice.Recipients, subject, body)
}

func (s *Service) fanOut(ctx context.Context, tenantID string, recipients []string, subject, body string) error {
	var errs []error
	sent := 0
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := s.email.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body}); err != nil {
			errs = append(errs, fmt.Errorf("notify: %s: %w", to, err))
			continue
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("operator notification sent", "tenant_id", tenantID, "recipients", sent, "subject", subject)
	}
	return errors.Join(errs...)
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "não informado"
	}
	return v
}
