package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already e164", "+905331234567", "+905331234567"},
		{"double zero prefix", "00905331234567", "+905331234567"},
		{"local leading zero", "05331234567", "+905331234567"},
		{"bare local", "5331234567", "+905331234567"},
		{"spaces and dashes stripped", "0533 123-45-67", "+905331234567"},
		{"parens stripped", "(0533) 123 45 67", "+905331234567"},
		{"short local gains country code", "12345", "+9012345"},
		{"too short even with country code", "123", ""},
		{"empty", "", ""},
		{"letters only", "call me", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw, "+90"))
		})
	}
}

func TestStripWhatsAppPrefix(t *testing.T) {
	assert.Equal(t, "+905331234567", StripWhatsAppPrefix("whatsapp:+905331234567"))
	assert.Equal(t, "+905331234567", StripWhatsAppPrefix("WhatsApp:+905331234567"))
	assert.Equal(t, "+905331234567", StripWhatsAppPrefix("+905331234567"))
	assert.Equal(t, "", StripWhatsAppPrefix(""))
}
