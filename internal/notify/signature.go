package notify

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// BuildTwilioSignature computes the signature Twilio attaches to webhook
// posts: HMAC-SHA1 over the full URL concatenated with the sorted form
// parameters, base64-encoded.
func BuildTwilioSignature(requestURL string, form url.Values, authToken string) string {
	signingData := requestURL

	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, value := range form[key] {
			signingData += key + value
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(signingData))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature verifies an incoming webhook signature in constant
// time. An empty token or header always fails.
func ValidTwilioSignature(requestURL string, form url.Values, authToken, incoming string) bool {
	if authToken == "" || incoming == "" {
		return false
	}
	expected := BuildTwilioSignature(requestURL, form, authToken)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(incoming)) == 1
}
