package notify

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestOfferMessage(t *testing.T) {
	msg := OfferMessage("Plumbing", "Girne", "Karakum", "Ali", "+905331234567",
		"Leaking kitchen tap", "A1B2C3D4E5")

	assert.Contains(t, msg, "Plumbing")
	assert.Contains(t, msg, "Girne/Karakum")
	assert.Contains(t, msg, "ACCEPT A1B2C3D4E5")
	assert.Contains(t, msg, "REJECT A1B2C3D4E5")
}

func TestOfferMessageTruncatesLongDetails(t *testing.T) {
	long := strings.Repeat("x", 500)
	msg := OfferMessage("Plumbing", "Girne", "Karakum", "Ali", "+905331234567", long, "A1B2C3D4E5")

	assert.Contains(t, msg, strings.Repeat("x", 180))
	assert.NotContains(t, msg, strings.Repeat("x", 181))
}

func TestOfferMessageTruncatesOnRunes(t *testing.T) {
	// Turkish details must not be cut mid-rune
	long := strings.Repeat("ş", 300)
	msg := OfferMessage("Plumbing", "Girne", "Karakum", "Ali", "+905331234567", long, "A1B2C3D4E5")

	assert.True(t, utf8.ValidString(msg))
	assert.Contains(t, msg, strings.Repeat("ş", 180))
	assert.NotContains(t, msg, strings.Repeat("ş", 181))
}

func TestReminderMessage(t *testing.T) {
	expires := time.Date(2025, 6, 1, 17, 30, 0, 0, time.UTC)
	msg := ReminderMessage("A1B2C3D4E5", expires)

	assert.Contains(t, msg, "17:30")
	assert.Contains(t, msg, "ACCEPT A1B2C3D4E5")
}
