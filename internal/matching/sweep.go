package matching

import (
	"encoding/hex"
	"strings"

	"marketplace-service/internal/models"

	"github.com/google/uuid"
)

// ReconcileAction is what the lifecycle sweep decides for one request after
// stale offers were expired.
type ReconcileAction string

const (
	// ReconcileSkip leaves matched/completed/cancelled requests alone.
	ReconcileSkip ReconcileAction = "skip"
	// ReconcilePendingCustomer keeps the customer choosing among quotes.
	ReconcilePendingCustomer ReconcileAction = "pending-customer"
	// ReconcilePendingProvider keeps waiting on pending offers.
	ReconcilePendingProvider ReconcileAction = "pending-provider"
	// ReconcileRedispatch sends the next tier out.
	ReconcileRedispatch ReconcileAction = "redispatch"
)

// Reconcile decides a request's post-sweep fate. Accepted offers trump
// pending ones; with neither left, the next tier goes out.
func Reconcile(requestStatus string, hasAccepted, hasPending bool) ReconcileAction {
	switch requestStatus {
	case models.RequestStatusMatched, models.RequestStatusCompleted, models.RequestStatusCancelled:
		return ReconcileSkip
	}
	if hasAccepted {
		return ReconcilePendingCustomer
	}
	if hasPending {
		return ReconcilePendingProvider
	}
	return ReconcileRedispatch
}

// DeleteAfterDispatch decides the fate of a request whose offer pool
// drained and whose follow-up dispatch planned no wave: with no candidate
// ever reachable again the request is deleted, not parked.
func DeleteAfterDispatch(result WaveResult) bool {
	return result != WavePlanned
}

// TokenLength is the size of the out-of-band offer reply code.
const TokenLength = 10

// NewOfferToken produces a short upper-cased hex code for channel replies.
// Collisions are possible at this length; callers retry against the store.
func NewOfferToken() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:])[:TokenLength])
}
