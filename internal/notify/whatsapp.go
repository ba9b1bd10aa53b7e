package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// SendResult reports one delivery attempt. Attempted false means the send
// was never tried (disabled, misconfigured, bad phone); Sent false with
// Attempted true is a live delivery failure.
type SendResult struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Detail    string `json:"detail"`
}

// Notifier delivers a message to a provider's phone. Implementations hide
// the channel (WhatsApp, console, in-app queue).
type Notifier interface {
	Send(ctx context.Context, phone, message string) SendResult
}

// TwilioNotifier sends WhatsApp messages through the Twilio REST API.
type TwilioNotifier struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	logger *zap.Logger
}

// NewTwilioNotifier creates a WhatsApp notifier from config
func NewTwilioNotifier(cfg config.WhatsAppConfig) *TwilioNotifier {
	return &TwilioNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// Send delivers one WhatsApp message. Never returns an error: every failure
// mode is encoded in the result detail so dispatch can record it per offer.
func (n *TwilioNotifier) Send(ctx context.Context, phone, message string) SendResult {
	if !n.cfg.Enabled {
		return SendResult{Attempted: false, Sent: false, Detail: "notifications-disabled"}
	}
	if n.cfg.AccountSID == "" || n.cfg.AuthToken == "" || n.cfg.FromNumber == "" {
		return SendResult{Attempted: false, Sent: false, Detail: "missing-twilio-config"}
	}

	toE164 := NormalizePhone(phone, n.cfg.DefaultCountryCode)
	if toE164 == "" {
		return SendResult{Attempted: false, Sent: false, Detail: "invalid-phone"}
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", n.cfg.AccountSID)
	form := url.Values{
		"From": {"whatsapp:" + n.cfg.FromNumber},
		"To":   {"whatsapp:" + toE164},
		"Body": {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{Attempted: true, Sent: false, Detail: "request-build-failed"}
	}
	req.SetBasicAuth(n.cfg.AccountSID, n.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Twilio WhatsApp send failed", zap.Error(err))
		return SendResult{Attempted: true, Sent: false, Detail: "send-failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResult{Attempted: true, Sent: true, Detail: "sent"}
	}

	n.logger.Warn("Twilio WhatsApp HTTP error", zap.Int("status", resp.StatusCode))
	return SendResult{Attempted: true, Sent: false, Detail: fmt.Sprintf("http-%d", resp.StatusCode)}
}

// ConsoleNotifier logs instead of sending. Used in development and tests.
type ConsoleNotifier struct {
	logger *zap.Logger
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{logger: util.GetLogger()}
}

func (n *ConsoleNotifier) Send(_ context.Context, phone, message string) SendResult {
	n.logger.Info("Notification (console)", zap.String("phone", phone), zap.String("message", message))
	return SendResult{Attempted: true, Sent: true, Detail: "console"}
}

// OfferMessage builds the WhatsApp body asking a provider to quote.
func OfferMessage(serviceType, city, district, customerName, customerPhone, details, token string) string {
	if runes := []rune(details); len(runes) > 180 {
		details = string(runes[:180])
	}
	return fmt.Sprintf(
		"New job request.\nService: %s\nLocation: %s/%s\nCustomer: %s - %s\nDetails: %s\n\nTo accept: ACCEPT %s\nTo decline: REJECT %s",
		serviceType, city, district, customerName, customerPhone, details, token, token)
}

// ReminderMessage builds the nudge sent shortly before an offer expires.
func ReminderMessage(token string, expiresAt time.Time) string {
	return fmt.Sprintf(
		"Reminder: a job request is waiting for your reply until %s.\nTo accept: ACCEPT %s\nTo decline: REJECT %s",
		expiresAt.Format("15:04"), token, token)
}
