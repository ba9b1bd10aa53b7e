package notify

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTwilioSignature(t *testing.T) {
	requestURL := "https://example.com/webhooks/whatsapp"
	form := url.Values{
		"From": {"whatsapp:+905331234567"},
		"Body": {"ACCEPT A1B2C3D4E5"},
	}
	token := "test-auth-token"

	sig := BuildTwilioSignature(requestURL, form, token)
	assert.True(t, ValidTwilioSignature(requestURL, form, token, sig))
}

func TestValidTwilioSignatureRejectsTampering(t *testing.T) {
	requestURL := "https://example.com/webhooks/whatsapp"
	form := url.Values{
		"From": {"whatsapp:+905331234567"},
		"Body": {"ACCEPT A1B2C3D4E5"},
	}
	token := "test-auth-token"
	sig := BuildTwilioSignature(requestURL, form, token)

	tampered := url.Values{
		"From": {"whatsapp:+905339999999"},
		"Body": {"ACCEPT A1B2C3D4E5"},
	}
	assert.False(t, ValidTwilioSignature(requestURL, tampered, token, sig))
	assert.False(t, ValidTwilioSignature("https://evil.example.com/hook", form, token, sig))
	assert.False(t, ValidTwilioSignature(requestURL, form, "other-token", sig))
}

func TestValidTwilioSignatureEmptyInputsFail(t *testing.T) {
	form := url.Values{"Body": {"hi"}}
	sig := BuildTwilioSignature("https://example.com/x", form, "token")

	assert.False(t, ValidTwilioSignature("https://example.com/x", form, "", sig))
	assert.False(t, ValidTwilioSignature("https://example.com/x", form, "token", ""))
}

func TestBuildTwilioSignatureSortsKeys(t *testing.T) {
	// Parameter order in the map must not affect the signature
	a := url.Values{}
	a.Set("Body", "hello")
	a.Set("From", "+90533")

	b := url.Values{}
	b.Set("From", "+90533")
	b.Set("Body", "hello")

	assert.Equal(t,
		BuildTwilioSignature("https://example.com/x", a, "token"),
		BuildTwilioSignature("https://example.com/x", b, "token"))
}
