package notify

import "strings"

// ReplyAction is what a provider's free-text channel reply asks for.
type ReplyAction string

const (
	ReplyAccept  ReplyAction = "accept"
	ReplyReject  ReplyAction = "reject"
	ReplyUnknown ReplyAction = ""
)

var acceptWords = map[string]bool{"ACCEPT": true, "KABUL": true, "ONAY": true}
var rejectWords = map[string]bool{"REJECT": true, "RED": true, "RET": true}

// ParseReply interprets the two-token command grammar used on the WhatsApp
// channel: "{ACCEPT|REJECT synonym} {TOKEN}", case-insensitive. The token is
// returned upper-cased even when the command word is unrecognized, so the
// caller can answer with context.
func ParseReply(body string) (ReplyAction, string) {
	text := strings.ToUpper(strings.TrimSpace(body))
	if text == "" {
		return ReplyUnknown, ""
	}

	parts := strings.Fields(text)
	if len(parts) < 2 {
		return ReplyUnknown, ""
	}

	command, token := parts[0], parts[1]
	switch {
	case acceptWords[command]:
		return ReplyAccept, token
	case rejectWords[command]:
		return ReplyReject, token
	}
	return ReplyUnknown, token
}
