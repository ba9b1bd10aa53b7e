package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantAction ReplyAction
		wantToken  string
	}{
		{"english accept", "ACCEPT A1B2C3D4E5", ReplyAccept, "A1B2C3D4E5"},
		{"turkish accept kabul", "kabul a1b2c3d4e5", ReplyAccept, "A1B2C3D4E5"},
		{"turkish accept onay", "Onay A1B2C3D4E5", ReplyAccept, "A1B2C3D4E5"},
		{"english reject", "REJECT A1B2C3D4E5", ReplyReject, "A1B2C3D4E5"},
		{"turkish reject red", "red A1B2C3D4E5", ReplyReject, "A1B2C3D4E5"},
		{"turkish reject ret", "RET A1B2C3D4E5", ReplyReject, "A1B2C3D4E5"},
		{"leading whitespace", "  accept A1B2C3D4E5  ", ReplyAccept, "A1B2C3D4E5"},
		{"extra words ignored", "ACCEPT A1B2C3D4E5 please", ReplyAccept, "A1B2C3D4E5"},
		{"unknown command keeps token", "MAYBE A1B2C3D4E5", ReplyUnknown, "A1B2C3D4E5"},
		{"command without token", "ACCEPT", ReplyUnknown, ""},
		{"empty body", "", ReplyUnknown, ""},
		{"whitespace only", "   ", ReplyUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, token := ParseReply(tt.body)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
