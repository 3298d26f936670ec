package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
)

// Intent is the routing decision derived from a user turn.
type Intent string

const (
	IntentMenu     Intent = "menu"
	IntentReset    Intent = "reset"
	IntentResume   Intent = "resume"
	IntentHandoff  Intent = "handoff"
	IntentAddress  Intent = "address"
	IntentHours    Intent = "hours"
	IntentPrice    Intent = "price"
	IntentBooking  Intent = "booking"
	IntentOrder    Intent = "order"
	IntentFallback Intent = "fallback"
)

type intentRule struct {
	intent Intent
	match  func(lower string) bool
}

func pattern(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

var (
	handoffPattern = regexp.MustCompile(`humano|atendente|pessoa|suporte`)

	// Evaluated top to bottom; the first hit wins. Patterns overlap, so the
	// order is part of the behavior.
	intentRules = []intentRule{
		{IntentMenu, pattern(`^(menu|ajuda|opções|opcoes)$`)},
		{IntentReset, pattern(`cancelar|cancela|parar|zera|reset`)},
		{IntentResume, pattern(`voltar pro bot|voltar ao bot|bot on|bot ligado`)},
		{IntentHandoff, handoffPattern.MatchString},
		{IntentAddress, pattern(`endereço|endereco|localização|localizacao|onde fica|maps`)},
		{IntentHours, pattern(`horário|horario|abre|fecha|funciona`)},
		{IntentPrice, pattern(`preço|preco|valor|quanto custa|orçamento|orcamento`)},
		{IntentBooking, pattern(`agendar|agenda|marcar|horário\s+para|horario\s+para|reserva`)},
		{IntentOrder, pattern(`pedido|comprar|entrega|delivery|retirar|retirada`)},
	}

	menuShortcuts = map[string]Intent{
		"1": IntentAddress,
		"2": IntentHours,
		"3": IntentPrice,
		"4": IntentBooking,
		"5": IntentHandoff,
	}

	earlyOpenPattern = regexp.MustCompile(`mais cedo|cedo|antes das|antes de\s*0?8`)
	weekendPattern   = regexp.MustCompile(`sábado|sabado|domingo|fim de semana`)

	// Word boundaries are spelled out because \b is ASCII-only and would
	// reject accented endings such as "amanhã".
	numericDatePattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(\d{1,2}/\d{1,2}(?:/\d{2,4})?)(?:$|[^\p{L}\p{N}])`)
	dayWordPattern     = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(hoje|amanhã|amanha|segunda|terça|terca|quarta|quinta|sexta|sábado|sabado|domingo)(?:$|[^\p{L}\p{N}])`)
	timePattern        = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}|\d{1,2}h(\d{2})?)\b`)
	clockPattern       = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	hourMarkPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})h(\d{2})?\b`)
)

// Classify maps a user turn to an intent. Matching runs on a lower-cased
// copy. The tenant catalog does not affect the result today; it is accepted
// so rules can grow tenant-specific vocabulary without changing callers.
func Classify(text string, _ tenant.Config) Intent {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		if rule.match(lower) {
			return rule.intent
		}
	}
	return IntentFallback
}

// MenuShortcut translates a numeric menu reply ("1".."5") into its intent.
func MenuShortcut(text string) (Intent, bool) {
	intent, ok := menuShortcuts[strings.TrimSpace(text)]
	return intent, ok
}

// ResolveIntent applies the menu shortcut lookup and then the classifier.
func ResolveIntent(text string, cfg tenant.Config) Intent {
	if intent, ok := MenuShortcut(text); ok {
		return intent
	}
	return Classify(text, cfg)
}

// MentionsHandoff reports whether text asks for a human, independent of
// classifier priority.
func MentionsHandoff(text string) bool {
	return handoffPattern.MatchString(strings.ToLower(text))
}

// ExtractService returns the first catalog entry whose key or display name
// appears in text.
func ExtractService(text string, catalog []tenant.Service) (tenant.Service, bool) {
	lower := strings.ToLower(text)
	for _, svc := range catalog {
		if svc.Key != "" && strings.Contains(lower, strings.ToLower(svc.Key)) {
			return svc, true
		}
		if svc.Name != "" && strings.Contains(lower, strings.ToLower(svc.Name)) {
			return svc, true
		}
	}
	return tenant.Service{}, false
}

// LooksLikeDate reports a dd/mm[/yy] date or a relative day word.
func LooksLikeDate(text string) bool {
	return numericDatePattern.MatchString(text) || dayWordPattern.MatchString(text)
}

// LooksLikeTime reports an HH:MM or HHh[MM] time.
func LooksLikeTime(text string) bool {
	return timePattern.MatchString(text)
}

// ExtractTime normalizes the first time in text to zero-padded HH:MM.
func ExtractTime(text string) (string, bool) {
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		return padHour(m[1]) + ":" + m[2], true
	}
	if m := hourMarkPattern.FindStringSubmatch(text); m != nil {
		minutes := m[2]
		if minutes == "" {
			minutes = "00"
		}
		return padHour(m[1]) + ":" + minutes, true
	}
	return "", false
}

func padHour(h string) string {
	if len(h) == 1 {
		return "0" + h
	}
	return h
}

func asksEarlyOpening(lower string) bool {
	return earlyOpenPattern.MatchString(lower)
}

func asksWeekend(lower string) bool {
	return weekendPattern.MatchString(lower)
}
