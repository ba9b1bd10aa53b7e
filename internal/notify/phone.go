package notify

import "strings"

// NormalizePhone converts a raw phone number into E.164, assuming the
// default country code for local numbers. Returns "" when the input cannot
// be a dialable number.
func NormalizePhone(raw, defaultCountryCode string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	for _, ch := range raw {
		if ch == '+' || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
	}
	phone := b.String()

	switch {
	case strings.HasPrefix(phone, "00"):
		phone = "+" + phone[2:]
	case strings.HasPrefix(phone, "0"):
		phone = defaultCountryCode + phone[1:]
	case !strings.HasPrefix(phone, "+"):
		phone = defaultCountryCode + phone
	}

	if !strings.HasPrefix(phone, "+") || len(phone) < 8 {
		return ""
	}
	return phone
}

// StripWhatsAppPrefix removes the channel prefix Twilio puts on sender ids.
func StripWhatsAppPrefix(value string) string {
	if len(value) >= 9 && strings.EqualFold(value[:9], "whatsapp:") {
		return value[9:]
	}
	return value
}
