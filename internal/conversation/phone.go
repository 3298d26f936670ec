package conversation

import "strings"

// NormalizeBR reduces a WhatsApp sender id to digits and upgrades legacy
// Brazilian mobile numbers (55 + area code + 8 digits) to the 9-digit form.
func NormalizeBR(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 1)
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, "55") {
		return digits[:4] + "9" + digits[4:]
	}
	return digits
}
