package tenant

import "os"

const defaultConfirmText = "Perfeito! Vou confirmar com a equipe e já te retorno. ✅"

const defaultHandoffMessage = "Ok 👍 vou chamar um atendente humano. Enquanto isso, pode me dizer seu nome e o que você precisa?"

// Builtin returns the tenants served when no tenants file is configured.
// Phone-number ids come from the environment so the same binary can run
// against different WhatsApp Business accounts.
func Builtin() []Config {
	digitalwolkPhone := os.Getenv("DIGITALWOLK_PHONE_NUMBER_ID")
	if digitalwolkPhone == "" {
		digitalwolkPhone = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}

	return []Config{
		{
			ID:               "digitalwolk",
			PhoneNumberID:    digitalwolkPhone,
			Name:             "Digitalwolk",
			ShortDescription: "Soluções digitais e automação de atendimento via WhatsApp para empresas.",
			Address:          "Maringá - PR (endereço sob demanda)",
			AddressLink:      "https://maps.google.com/?q=Maring%C3%A1+-+PR",
			Hours:            "Seg a Sex 09h às 18h",
			Policies: Policies{
				EarlyOpen: "A gente atende a partir das 09h. Se for urgente, me diga o motivo e eu verifico com a equipe.",
				Weekend:   "No momento não atendemos aos sábados e domingos.",
			},
			Handoff: Handoff{Enabled: true, Message: defaultHandoffMessage},
			Catalog: Catalog{
				Services: []Service{
					{Key: "whatsapp", Name: "Automação de WhatsApp (bot)"},
					{Key: "site", Name: "Site / Landing page"},
					{Key: "integracao", Name: "Integrações (CRM, Google Sheets, etc.)"},
				},
				Notes: "Me diga qual serviço você quer e o contexto (empresa/objetivo) que eu já te direciono com o próximo passo.",
			},
			Booking: Booking{
				Enabled:     true,
				Require:     []string{FieldService, FieldDate, FieldTime, FieldName},
				ConfirmText: defaultConfirmText,
			},
		},
		{
			ID:               "jaspers",
			PhoneNumberID:    os.Getenv("JASPERS_PHONE_NUMBER_ID"),
			Name:             "Jasper's Market",
			ShortDescription: "Mercado de bairro com atendimento rápido por WhatsApp.",
			Address:          "Rua Exemplo, 123 - Maringá",
			AddressLink:      "https://maps.google.com/?q=Rua+Exemplo,+123+-+Maring%C3%A1",
			Hours:            "Seg a Sex 08h às 18h",
			Policies: Policies{
				EarlyOpen: "A gente abre às 08h. Se você precisar muito antes, me diga o motivo e eu verifico com a equipe.",
				Weekend:   "No momento não abrimos aos sábados e domingos.",
			},
			Handoff: Handoff{Enabled: true, Message: defaultHandoffMessage},
			Catalog: Catalog{
				Services: []Service{
					{Key: "corte", Name: "Corte de cabelo"},
					{Key: "barba", Name: "Barba"},
					{Key: "corte+barba", Name: "Corte + Barba"},
				},
				Notes: "Se você me disser o serviço exato, eu te passo o valor certinho (ou confirmo com a equipe).",
			},
			Booking: Booking{
				Enabled:     true,
				Require:     []string{FieldService, FieldDate, FieldTime, FieldName},
				ConfirmText: defaultConfirmText,
			},
		},
	}
}
