package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"
)

// CreateOffer creates a new pending provider offer
func (s *Store) CreateOffer(ctx context.Context, offer *models.ProviderOffer) error {
	query := `
		INSERT INTO provider_offers
			(service_request_id, provider_id, token, sequence, status, sent_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, offer, query,
		offer.ServiceRequestID, offer.ProviderID, offer.Token, offer.Sequence,
		offer.Status, offer.SentAt, offer.ExpiresAt)
}

// GetOfferByID retrieves an offer by ID
func (s *Store) GetOfferByID(ctx context.Context, id int64) (*models.ProviderOffer, error) {
	var offer models.ProviderOffer
	err := s.db.GetContext(ctx, &offer, "SELECT * FROM provider_offers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetPendingOfferByToken resolves a reply token to its offer, pending only.
// A stale or unknown token returns nil without error so the webhook can
// answer politely.
func (s *Store) GetPendingOfferByToken(ctx context.Context, token string) (*models.ProviderOffer, error) {
	var offer models.ProviderOffer
	err := s.db.GetContext(ctx, &offer,
		"SELECT * FROM provider_offers WHERE token = $1 AND status = $2",
		token, models.OfferStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// TokenExists reports whether any offer already carries the token.
func (s *Store) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM provider_offers WHERE token = $1)", token)
	return exists, err
}

// GetOffersByRequest retrieves all offers for a request in dispatch order
func (s *Store) GetOffersByRequest(ctx context.Context, requestID int64) ([]models.ProviderOffer, error) {
	var offers []models.ProviderOffer
	err := s.db.SelectContext(ctx, &offers,
		"SELECT * FROM provider_offers WHERE service_request_id = $1 ORDER BY sequence, id", requestID)
	return offers, err
}

// GetAcceptedOffersByRequest retrieves the accepted (quoted) offers for a request
func (s *Store) GetAcceptedOffersByRequest(ctx context.Context, requestID int64) ([]models.ProviderOffer, error) {
	var offers []models.ProviderOffer
	err := s.db.SelectContext(ctx, &offers,
		"SELECT * FROM provider_offers WHERE service_request_id = $1 AND status = $2 ORDER BY sequence, id",
		requestID, models.OfferStatusAccepted)
	return offers, err
}

// CountOffersByStatus counts a request's offers in the given status
func (s *Store) CountOffersByStatus(ctx context.Context, requestID int64, status string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM provider_offers WHERE service_request_id = $1 AND status = $2",
		requestID, status)
	return count, err
}

// CountOffersByRequest counts every offer ever made for a request
func (s *Store) CountOffersByRequest(ctx context.Context, requestID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM provider_offers WHERE service_request_id = $1", requestID)
	return count, err
}

// GetOfferedProviderIDs retrieves the providers already offered for a
// request, any status. Offer uniqueness per (request, provider) rests on this
// plus the DB unique constraint.
func (s *Store) GetOfferedProviderIDs(ctx context.Context, requestID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT provider_id FROM provider_offers WHERE service_request_id = $1", requestID)
	return ids, err
}

// UpdateOfferDelivery records the notifier's delivery detail for an offer
func (s *Store) UpdateOfferDelivery(ctx context.Context, offerID int64, detail string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE provider_offers SET last_delivery_detail = $1 WHERE id = $2",
		detail, offerID)
	return err
}

// MarkOfferFailed terminally fails an offer whose delivery did not go out
func (s *Store) MarkOfferFailed(ctx context.Context, offerID int64, detail string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE provider_offers SET status = $1, last_delivery_detail = $2, responded_at = $3 WHERE id = $4",
		models.OfferStatusFailed, detail, now, offerID)
	return err
}

// RejectPendingOffer transitions a pending offer to rejected. Safe without a
// lock: the single pending prior state plus per-request provider uniqueness
// make a conditional update sufficient.
func (s *Store) RejectPendingOffer(ctx context.Context, offerID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE provider_offers SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4",
		models.OfferStatusRejected, now, offerID, models.OfferStatusPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("offer %d is no longer pending: %w", offerID, ErrStateConflict)
	}
	return nil
}

// BackfillOfferExpiries sets expires_at for pending offers lacking one
func (s *Store) BackfillOfferExpiries(ctx context.Context, expiryMinutes int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE provider_offers
		SET expires_at = sent_at + ($1 * INTERVAL '1 minute')
		WHERE status = $2 AND expires_at IS NULL`,
		expiryMinutes, models.OfferStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireDueOffers expires every pending offer past its deadline and returns
// the expired rows so the sweep can reconcile their requests.
func (s *Store) ExpireDueOffers(ctx context.Context, now time.Time) ([]models.ProviderOffer, error) {
	var offers []models.ProviderOffer
	err := s.db.SelectContext(ctx, &offers, `
		UPDATE provider_offers
		SET status = $1, responded_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
		RETURNING *`,
		models.OfferStatusExpired, now, models.OfferStatusPending)
	return offers, err
}

// GetOffersDueReminder retrieves pending offers expiring inside the reminder
// window that have not been reminded yet.
func (s *Store) GetOffersDueReminder(ctx context.Context, now, windowEnd time.Time) ([]models.ProviderOffer, error) {
	var offers []models.ProviderOffer
	err := s.db.SelectContext(ctx, &offers, `
		SELECT * FROM provider_offers
		WHERE status = $1
		  AND reminder_sent_at IS NULL
		  AND expires_at IS NOT NULL
		  AND expires_at > $2 AND expires_at <= $3
		ORDER BY expires_at`,
		models.OfferStatusPending, now, windowEnd)
	return offers, err
}

// MarkReminderSent stamps reminder_sent_at, once per offer
func (s *Store) MarkReminderSent(ctx context.Context, offerID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE provider_offers SET reminder_sent_at = $1 WHERE id = $2 AND reminder_sent_at IS NULL",
		now, offerID)
	return err
}

// AcceptOfferTx accepts a pending offer with a quote and debits the quote
// credit cost in the same transaction. Rows are locked in offer, request,
// wallet order to keep concurrent accepts from deadlocking or double
// spending. Insufficient balance aborts the whole accept.
func (s *Store) AcceptOfferTx(ctx context.Context, offerID int64, quoteAmount *int64, quoteNote string, cost, initialGrant int64, now time.Time) (*models.ProviderOffer, int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var offer models.ProviderOffer
	err = tx.GetContext(ctx, &offer, "SELECT * FROM provider_offers WHERE id = $1 FOR UPDATE", offerID)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to lock offer: %w", err)
	}

	if offer.Status != models.OfferStatusPending {
		return nil, 0, fmt.Errorf("offer %d is %s, not pending: %w", offerID, offer.Status, ErrStateConflict)
	}

	var req models.ServiceRequest
	err = tx.GetContext(ctx, &req,
		"SELECT * FROM service_requests WHERE id = $1 FOR UPDATE", offer.ServiceRequestID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to lock request: %w", err)
	}

	if req.MatchedProviderID != nil || models.IsRequestTerminal(req.Status) || req.Status == models.RequestStatusMatched {
		return nil, 0, fmt.Errorf("request %d no longer accepts quotes in status %s: %w",
			req.ID, req.Status, ErrStateConflict)
	}

	wallet, err := lockOrCreateWalletTx(ctx, tx, offer.ProviderID, initialGrant, now)
	if err != nil {
		return nil, 0, err
	}

	balanceAfter := wallet.Balance
	if cost > 0 {
		balanceAfter = wallet.Balance - cost
		if balanceAfter < 0 {
			return nil, 0, fmt.Errorf("provider %d balance %d cannot cover cost %d: %w",
				offer.ProviderID, wallet.Balance, cost, ErrInsufficientCredit)
		}

		if err := applyLedgerRowTx(ctx, tx, wallet.ProviderID, models.TransactionTypeQuoteDebit,
			-cost, balanceAfter, "quote credit for offer", &offer.ID); err != nil {
			return nil, 0, err
		}
	}

	err = tx.GetContext(ctx, &offer, `
		UPDATE provider_offers
		SET status = $1, quote_amount = $2, quote_note = $3, responded_at = $4
		WHERE id = $5
		RETURNING *`,
		models.OfferStatusAccepted, quoteAmount, quoteNote, now, offerID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to accept offer: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE service_requests SET status = $1, updated_at = NOW() WHERE id = $2",
		models.RequestStatusPendingCustomer, req.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to move request to pending_customer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return &offer, balanceAfter, nil
}
