package models

import "time"

// ServiceType is a category of home-repair work (plumbing, electrics, ...).
type ServiceType struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

// Provider represents a tradesperson offering one or more service types.
type Provider struct {
	ID          int64     `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Phone       string    `db:"phone" json:"phone"`
	City        string    `db:"city" json:"city"`
	District    string    `db:"district" json:"district"`
	Latitude    *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64  `db:"longitude" json:"longitude,omitempty"`
	Rating      float64   `db:"rating" json:"rating"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	IsVerified  bool      `db:"is_verified" json:"is_verified"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ServiceRequest is a customer's ask for work; mutated only through the
// matching state machine, never re-created.
type ServiceRequest struct {
	ID                int64      `db:"id" json:"id"`
	CustomerID        *int64     `db:"customer_id" json:"customer_id,omitempty"`
	CustomerName      string     `db:"customer_name" json:"customer_name"`
	CustomerPhone     string     `db:"customer_phone" json:"customer_phone"`
	City              string     `db:"city" json:"city"`
	District          string     `db:"district" json:"district"`
	ServiceTypeID     int64      `db:"service_type_id" json:"service_type_id"`
	Details           string     `db:"details" json:"details"`
	Status            string     `db:"status" json:"status"`
	MatchedProviderID *int64     `db:"matched_provider_id" json:"matched_provider_id,omitempty"`
	MatchedOfferID    *int64     `db:"matched_offer_id" json:"matched_offer_id,omitempty"`
	MatchedAt         *time.Time `db:"matched_at" json:"matched_at,omitempty"`
	IdempotencyKey    string     `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ProviderOffer is one dispatch to one provider for one request.
// Unique per (request, provider); token identifies it on the WhatsApp channel.
type ProviderOffer struct {
	ID                 int64      `db:"id" json:"id"`
	ServiceRequestID   int64      `db:"service_request_id" json:"service_request_id"`
	ProviderID         int64      `db:"provider_id" json:"provider_id"`
	Token              string     `db:"token" json:"token"`
	Sequence           int        `db:"sequence" json:"sequence"`
	Status             string     `db:"status" json:"status"`
	QuoteAmount        *int64     `db:"quote_amount" json:"quote_amount,omitempty"`
	QuoteNote          string     `db:"quote_note" json:"quote_note,omitempty"`
	LastDeliveryDetail string     `db:"last_delivery_detail" json:"last_delivery_detail,omitempty"`
	SentAt             time.Time  `db:"sent_at" json:"sent_at"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	ReminderSentAt     *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	RespondedAt        *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// ServiceAppointment is the scheduling handshake for a matched request.
type ServiceAppointment struct {
	ID               int64     `db:"id" json:"id"`
	ServiceRequestID int64     `db:"service_request_id" json:"service_request_id"`
	ProviderID       int64     `db:"provider_id" json:"provider_id"`
	Status           string    `db:"status" json:"status"`
	ScheduledFor     time.Time `db:"scheduled_for" json:"scheduled_for"`
	CustomerNote     string    `db:"customer_note" json:"customer_note,omitempty"`
	ProviderNote     string    `db:"provider_note" json:"provider_note,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderWallet holds a provider's credit balance. The balance only moves
// through ledgered transactions and never goes below zero.
type ProviderWallet struct {
	ID         int64     `db:"id" json:"id"`
	ProviderID int64     `db:"provider_id" json:"provider_id"`
	Balance    int64     `db:"balance" json:"balance"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CreditTransaction is an append-only ledger row. Summing amounts for a
// provider always reconstructs the current wallet balance.
type CreditTransaction struct {
	ID              int64     `db:"id" json:"id"`
	ProviderID      int64     `db:"provider_id" json:"provider_id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	Amount          int64     `db:"amount" json:"amount"`
	BalanceAfter    int64     `db:"balance_after" json:"balance_after"`
	Note            string    `db:"note" json:"note,omitempty"`
	OfferID         *int64    `db:"offer_id" json:"offer_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ProviderRating is one customer's score for one completed request.
type ProviderRating struct {
	ID               int64     `db:"id" json:"id"`
	ProviderID       int64     `db:"provider_id" json:"provider_id"`
	CustomerID       int64     `db:"customer_id" json:"customer_id"`
	ServiceRequestID int64     `db:"service_request_id" json:"service_request_id"`
	Score            int       `db:"score" json:"score"`
	Comment          string    `db:"comment" json:"comment,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RequestMessage is one line of the customer/provider thread for a request.
// The whole thread is purged when the request completes.
type RequestMessage struct {
	ID               int64     `db:"id" json:"id"`
	ServiceRequestID int64     `db:"service_request_id" json:"service_request_id"`
	SenderRole       string    `db:"sender_role" json:"sender_role"`
	Body             string    `db:"body" json:"body"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ServiceRequest statuses
const (
	RequestStatusNew             = "new"
	RequestStatusPendingProvider = "pending_provider"
	RequestStatusPendingCustomer = "pending_customer"
	RequestStatusMatched         = "matched"
	RequestStatusCompleted       = "completed"
	RequestStatusCancelled       = "cancelled"
)

// ProviderOffer statuses
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
	OfferStatusExpired  = "expired"
	OfferStatusFailed   = "failed"
)

// ServiceAppointment statuses
const (
	AppointmentStatusPending         = "pending"
	AppointmentStatusPendingCustomer = "pending_customer"
	AppointmentStatusConfirmed       = "confirmed"
	AppointmentStatusRejected        = "rejected"
	AppointmentStatusCancelled       = "cancelled"
	AppointmentStatusCompleted       = "completed"
)

// Credit transaction types
const (
	TransactionTypeInitialGrant = "initial_grant"
	TransactionTypeQuoteDebit   = "quote_debit"
	TransactionTypeTopup        = "topup"
)

// Message sender roles
const (
	SenderRoleCustomer = "customer"
	SenderRoleProvider = "provider"
)

// IsRequestTerminal reports whether a request status accepts no further
// matching transitions.
func IsRequestTerminal(status string) bool {
	return status == RequestStatusCompleted || status == RequestStatusCancelled
}

// IsRequestCancellable reports whether a customer cancel is allowed from the
// given status. The caller must additionally check matched_provider is unset.
func IsRequestCancellable(status string) bool {
	switch status {
	case RequestStatusNew, RequestStatusPendingProvider, RequestStatusPendingCustomer:
		return true
	}
	return false
}

// ProcessedEvent records consumed event ids for idempotent handling.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
