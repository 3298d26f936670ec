package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
)

const (
	replyNonText        = "Recebi 👍 Por enquanto eu entendo só mensagens de texto."
	replyHandoffActive  = "✅ Entendi. Um atendente humano vai continuar com você por aqui."
	replyHandoffDefault = "Ok 👍 vou chamar um atendente humano. Enquanto isso, pode me dizer seu nome e o que você precisa?"
	replyEmptyGenerated = "Não consegui responder agora 😅"
	replyOrder          = "Perfeito! Você quer *entrega* ou *retirar*?\nMe envie a lista do que precisa (pode ser em uma mensagem só)."
	summaryUnknown      = "não informado"
)

var fieldPrompts = map[string]string{
	tenant.FieldDate: "Para qual data? (ex: 25/02 ou amanhã)",
	tenant.FieldTime: "Qual horário você prefere? (ex: 14:30)",
	tenant.FieldName: "Qual seu nome? 🙂",
}

func menuText(cfg tenant.Config) string {
	return "Olá! Eu sou o atendimento do " + cfg.Name + " 🤖\n\n" +
		"Posso te ajudar com:\n" +
		"1) Endereço\n" +
		"2) Horário\n" +
		"3) Preços / orçamento\n" +
		"4) Agendar\n" +
		"5) Falar com humano\n\n" +
		"Responda com o número ou diga o que você precisa."
}

func resetText(cfg tenant.Config) string {
	return "Pronto ✅ resetado. Como posso te ajudar?\n\n" + menuText(cfg)
}

func resumeText(cfg tenant.Config) string {
	return "Fechado 🤖 Voltei! Como posso te ajudar?\n\n" + menuText(cfg)
}

func addressText(cfg tenant.Config) string {
	text := "Nosso endereço é: " + cfg.Address
	if cfg.AddressLink != "" {
		text += "\nMapa: " + cfg.AddressLink
	}
	return text
}

func hoursText(cfg tenant.Config) string {
	return "Nosso horário é: " + cfg.Hours
}

func priceText(svc tenant.Service) string {
	return fmt.Sprintf("O valor de %s é R$ %s.", svc.Name, strings.TrimSpace(svc.Price))
}

func catalogText(cfg tenant.Config) string {
	lines := make([]string, 0, len(cfg.Catalog.Services))
	for _, name := range cfg.ServiceNames() {
		lines = append(lines, "- "+name)
	}
	text := "Consigo te ajudar 🙂 Qual serviço você quer orçamento?\n\n" + strings.Join(lines, "\n")
	if cfg.Catalog.Notes != "" {
		text += "\n\n" + cfg.Catalog.Notes
	}
	return text
}

func servicePrompt(cfg tenant.Config) string {
	keys := cfg.ServiceKeys()
	if len(keys) == 0 {
		return "Qual serviço você quer agendar?"
	}
	if len(keys) > 3 {
		keys = keys[:3]
	}
	return "Qual serviço você quer agendar? (ex: " + strings.Join(keys, ", ") + ")"
}

// bookingPrompt asks for the next missing field, or lists every missing
// field when the next one has no dedicated question.
func bookingPrompt(missing []string, cfg tenant.Config) string {
	next := missing[0]
	if next == tenant.FieldService {
		return servicePrompt(cfg)
	}
	if prompt, ok := fieldPrompts[next]; ok {
		return prompt
	}
	return "Só mais uma informação pra eu finalizar: " + strings.Join(missing, ", ")
}

func bookingStartText(cfg tenant.Config) string {
	require := cfg.Booking.Require
	if len(require) == 0 {
		require = []string{tenant.FieldService, tenant.FieldDate, tenant.FieldTime, tenant.FieldName}
	}
	return "Fechado! Vamos agendar ✅\n" + bookingPrompt(require, cfg)
}

func bookingSummary(draft BookingDraft, cfg tenant.Config) string {
	value := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return summaryUnknown
		}
		return v
	}
	summary := "✅ Pedido de agendamento:\n" +
		"- Nome: " + value(draft.Name) + "\n" +
		"- Serviço: " + value(draft.Service) + "\n" +
		"- Data: " + value(draft.Date) + "\n" +
		"- Horário: " + value(draft.Time)
	if cfg.Booking.ConfirmText != "" {
		summary += "\n\n" + cfg.Booking.ConfirmText
	}
	return summary
}
