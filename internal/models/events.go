package models

import "time"

// Event types
const (
	EventTypeRequestCreated       = "REQUEST_CREATED"
	EventTypeOffersDispatched     = "OFFERS_DISPATCHED"
	EventTypeOfferAccepted        = "OFFER_ACCEPTED"
	EventTypeOfferRejected        = "OFFER_REJECTED"
	EventTypeOffersExpired        = "OFFERS_EXPIRED"
	EventTypeRequestMatched       = "REQUEST_MATCHED"
	EventTypeRequestCancelled     = "REQUEST_CANCELLED"
	EventTypeRequestCompleted     = "REQUEST_COMPLETED"
	EventTypeRequestDeleted       = "REQUEST_DELETED"
	EventTypeAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventTypeWalletDebited        = "WALLET_DEBITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestCreatedEvent published when a service request is created
type RequestCreatedEvent struct {
	BaseEvent
	RequestID     int64  `json:"request_id"`
	ServiceTypeID int64  `json:"service_type_id"`
	City          string `json:"city"`
	District      string `json:"district"`
}

// OffersDispatchedEvent published when a dispatch wave goes out
type OffersDispatchedEvent struct {
	BaseEvent
	RequestID   int64   `json:"request_id"`
	Sequence    int     `json:"sequence"`
	ProviderIDs []int64 `json:"provider_ids"`
	OfferCount  int     `json:"offer_count"`
}

// OfferAcceptedEvent published when a provider accepts with a quote
type OfferAcceptedEvent struct {
	BaseEvent
	RequestID   int64 `json:"request_id"`
	OfferID     int64 `json:"offer_id"`
	ProviderID  int64 `json:"provider_id"`
	QuoteAmount int64 `json:"quote_amount"`
}

// OfferRejectedEvent published when a provider declines
type OfferRejectedEvent struct {
	BaseEvent
	RequestID  int64 `json:"request_id"`
	OfferID    int64 `json:"offer_id"`
	ProviderID int64 `json:"provider_id"`
}

// OffersExpiredEvent published by the lifecycle sweep
type OffersExpiredEvent struct {
	BaseEvent
	RequestID int64   `json:"request_id"`
	OfferIDs  []int64 `json:"offer_ids"`
}

// RequestMatchedEvent published when the customer selects a winning offer
type RequestMatchedEvent struct {
	BaseEvent
	RequestID     int64  `json:"request_id"`
	OfferID       int64  `json:"offer_id"`
	ProviderID    int64  `json:"provider_id"`
	CustomerPhone string `json:"customer_phone"`
}

// RequestCancelledEvent published when the customer cancels an unmatched request
type RequestCancelledEvent struct {
	BaseEvent
	RequestID int64  `json:"request_id"`
	Reason    string `json:"reason"`
}

// RequestCompletedEvent published when work is marked done
type RequestCompletedEvent struct {
	BaseEvent
	RequestID  int64 `json:"request_id"`
	ProviderID int64 `json:"provider_id"`
}

// RequestDeletedEvent published when every eligible provider has declined
type RequestDeletedEvent struct {
	BaseEvent
	RequestID int64  `json:"request_id"`
	Reason    string `json:"reason"`
}

// AppointmentCompletedEvent published when the provider closes a confirmed slot
type AppointmentCompletedEvent struct {
	BaseEvent
	RequestID     int64 `json:"request_id"`
	AppointmentID int64 `json:"appointment_id"`
	ProviderID    int64 `json:"provider_id"`
}

// WalletDebitedEvent published when an accept debits quote credits
type WalletDebitedEvent struct {
	BaseEvent
	ProviderID   int64 `json:"provider_id"`
	Amount       int64 `json:"amount"`
	BalanceAfter int64 `json:"balance_after"`
	OfferID      int64 `json:"offer_id"`
}
