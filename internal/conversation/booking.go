package conversation

import (
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
)

// Get returns the value of a named booking field.
func (d BookingDraft) Get(field string) string {
	switch field {
	case tenant.FieldService:
		return d.Service
	case tenant.FieldDate:
		return d.Date
	case tenant.FieldTime:
		return d.Time
	case tenant.FieldName:
		return d.Name
	default:
		return ""
	}
}

// MissingFields lists the required fields still empty, in required order.
func (d BookingDraft) MissingFields(require []string) []string {
	var missing []string
	for _, field := range require {
		if strings.TrimSpace(d.Get(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// FillBooking consumes one user turn into the draft. At most one field is
// filled per turn, tried in the order service, date, time, name; the name is
// a catch-all used only when the text is not a date or time. It returns the
// updated draft and the field filled ("" when the turn matched nothing).
func FillBooking(draft BookingDraft, text string, catalog []tenant.Service) (BookingDraft, string) {
	if draft.Service == "" {
		if svc, ok := ExtractService(text, catalog); ok {
			draft.Service = svc.Key
			return draft, tenant.FieldService
		}
	}

	isDate := LooksLikeDate(text)
	if draft.Date == "" && isDate {
		draft.Date = text
		return draft, tenant.FieldDate
	}

	isTime := LooksLikeTime(text)
	if draft.Time == "" && isTime {
		if t, ok := ExtractTime(text); ok {
			draft.Time = t
		} else {
			draft.Time = text
		}
		return draft, tenant.FieldTime
	}

	if draft.Name == "" && utf8.RuneCountInString(text) >= 2 && !isDate && !isTime {
		draft.Name = text
		return draft, tenant.FieldName
	}
	return draft, ""
}
