package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"
)

// CreateServiceRequest creates a new service request in status "new".
func (s *Store) CreateServiceRequest(ctx context.Context, req *models.ServiceRequest) error {
	query := `
		INSERT INTO service_requests
			(customer_id, customer_name, customer_phone, city, district, service_type_id, details, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, req, query,
		req.CustomerID, req.CustomerName, req.CustomerPhone, req.City, req.District,
		req.ServiceTypeID, req.Details, req.Status, req.IdempotencyKey)
}

// GetRequestByID retrieves a service request by ID
func (s *Store) GetRequestByID(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := s.db.GetContext(ctx, &req, "SELECT * FROM service_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestByIdempotencyKey retrieves a service request by idempotency key
func (s *Store) GetRequestByIdempotencyKey(ctx context.Context, key string) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := s.db.GetContext(ctx, &req, "SELECT * FROM service_requests WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestsByCustomer retrieves a customer's requests, newest first
func (s *Store) GetRequestsByCustomer(ctx context.Context, customerID int64) ([]models.ServiceRequest, error) {
	var reqs []models.ServiceRequest
	err := s.db.SelectContext(ctx, &reqs,
		"SELECT * FROM service_requests WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return reqs, err
}

// UpdateRequestStatus updates only the status column
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE service_requests SET status = $1, updated_at = NOW() WHERE id = $2",
		status, requestID)
	return err
}

// ResetRequestMatching sets the status and clears any match fields. Used by
// the dispatcher when a wave goes out or no candidates remain.
func (s *Store) ResetRequestMatching(ctx context.Context, requestID int64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE service_requests
		SET status = $1, matched_provider_id = NULL, matched_offer_id = NULL, matched_at = NULL, updated_at = NOW()
		WHERE id = $2`,
		status, requestID)
	return err
}

// SelectOfferTx performs the customer's offer selection under a request-row
// lock. The unmatched check is re-run inside the lock to close the race
// between two concurrent selections. All sibling pending/accepted offers are
// expired and the chosen one becomes the matched offer.
func (s *Store) SelectOfferTx(ctx context.Context, requestID, offerID int64, now time.Time) (*models.ProviderOffer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var req models.ServiceRequest
	err = tx.GetContext(ctx, &req, "SELECT * FROM service_requests WHERE id = $1 FOR UPDATE", requestID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock request: %w", err)
	}

	if req.MatchedProviderID != nil ||
		(req.Status != models.RequestStatusPendingProvider && req.Status != models.RequestStatusPendingCustomer) {
		return nil, fmt.Errorf("request %d is not selectable in status %s: %w", requestID, req.Status, ErrStateConflict)
	}

	var offer models.ProviderOffer
	err = tx.GetContext(ctx, &offer,
		"SELECT * FROM provider_offers WHERE id = $1 AND service_request_id = $2 FOR UPDATE", offerID, requestID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock offer: %w", err)
	}

	if offer.Status != models.OfferStatusAccepted {
		return nil, fmt.Errorf("offer %d is %s, not accepted: %w", offerID, offer.Status, ErrStateConflict)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE provider_offers SET status = $1, responded_at = $2
		WHERE service_request_id = $3 AND id <> $4 AND status IN ($5, $6)`,
		models.OfferStatusExpired, now, requestID, offerID,
		models.OfferStatusPending, models.OfferStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to expire sibling offers: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE service_requests
		SET status = $1, matched_provider_id = $2, matched_offer_id = $3, matched_at = $4, updated_at = NOW()
		WHERE id = $5`,
		models.RequestStatusMatched, offer.ProviderID, offer.ID, now, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark request matched: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &offer, nil
}

// CancelRequestTx cancels an unmatched request, expiring any live offers.
func (s *Store) CancelRequestTx(ctx context.Context, requestID int64, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var req models.ServiceRequest
	err = tx.GetContext(ctx, &req, "SELECT * FROM service_requests WHERE id = $1 FOR UPDATE", requestID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("service request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock request: %w", err)
	}

	if req.MatchedProviderID != nil || !models.IsRequestCancellable(req.Status) {
		return fmt.Errorf("request %d cannot be cancelled in status %s: %w", requestID, req.Status, ErrStateConflict)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE provider_offers SET status = $1, responded_at = $2
		WHERE service_request_id = $3 AND status IN ($4, $5)`,
		models.OfferStatusExpired, now, requestID,
		models.OfferStatusPending, models.OfferStatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to expire offers: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE service_requests SET status = $1, updated_at = NOW() WHERE id = $2",
		models.RequestStatusCancelled, requestID)
	if err != nil {
		return fmt.Errorf("failed to cancel request: %w", err)
	}

	return tx.Commit()
}

// CompleteRequestTx marks a matched request completed. An appointment in
// pending or pending_customer blocks completion, as does a confirmed
// appointment scheduled in the future. The message thread is purged.
func (s *Store) CompleteRequestTx(ctx context.Context, requestID int64, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var req models.ServiceRequest
	err = tx.GetContext(ctx, &req, "SELECT * FROM service_requests WHERE id = $1 FOR UPDATE", requestID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("service request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock request: %w", err)
	}

	if req.Status != models.RequestStatusMatched {
		return fmt.Errorf("request %d is %s, not matched: %w", requestID, req.Status, ErrStateConflict)
	}

	var appt models.ServiceAppointment
	err = tx.GetContext(ctx, &appt,
		"SELECT * FROM service_appointments WHERE service_request_id = $1", requestID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to load appointment: %w", err)
	}
	if err == nil {
		if appt.Status == models.AppointmentStatusPending || appt.Status == models.AppointmentStatusPendingCustomer {
			return fmt.Errorf("appointment %d still awaiting confirmation: %w", appt.ID, ErrStateConflict)
		}
		if appt.Status == models.AppointmentStatusConfirmed && appt.ScheduledFor.After(now) {
			return fmt.Errorf("appointment %d is scheduled in the future: %w", appt.ID, ErrStateConflict)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE service_requests SET status = $1, updated_at = NOW() WHERE id = $2",
		models.RequestStatusCompleted, requestID)
	if err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}

	// Thread purge on completion is irreversible, by data-retention policy.
	_, err = tx.ExecContext(ctx, "DELETE FROM request_messages WHERE service_request_id = $1", requestID)
	if err != nil {
		return fmt.Errorf("failed to purge message thread: %w", err)
	}

	return tx.Commit()
}

// DeleteCancelledRequest removes a request the customer cancelled earlier.
func (s *Store) DeleteCancelledRequest(ctx context.Context, requestID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.GetContext(ctx, &status, "SELECT status FROM service_requests WHERE id = $1 FOR UPDATE", requestID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("service request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	if status != models.RequestStatusCancelled {
		return fmt.Errorf("request %d is %s, not cancelled: %w", requestID, status, ErrStateConflict)
	}

	if err := deleteRequestCascadeTx(ctx, tx, requestID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRequestCascade removes a request and everything hanging off it.
// Used by the terminal matching-failure path: a request every eligible
// provider has declined is deleted, not parked.
func (s *Store) DeleteRequestCascade(ctx context.Context, requestID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteRequestCascadeTx(ctx, tx, requestID); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteRequestCascadeTx spells out each relationship instead of relying on
// FK cascade rules. Ledger rows keep their history: offer references are
// nulled, not deleted.
func deleteRequestCascadeTx(ctx context.Context, tx sqlxExecer, requestID int64) error {
	steps := []struct {
		query string
		desc  string
	}{
		{`UPDATE credit_transactions SET offer_id = NULL
		  WHERE offer_id IN (SELECT id FROM provider_offers WHERE service_request_id = $1)`, "detach ledger rows"},
		{"DELETE FROM provider_ratings WHERE service_request_id = $1", "delete ratings"},
		{"DELETE FROM request_messages WHERE service_request_id = $1", "delete messages"},
		{"DELETE FROM service_appointments WHERE service_request_id = $1", "delete appointments"},
		{"DELETE FROM provider_offers WHERE service_request_id = $1", "delete offers"},
		{"DELETE FROM service_requests WHERE id = $1", "delete request"},
	}

	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, requestID); err != nil {
			return fmt.Errorf("failed to %s: %w", step.desc, err)
		}
	}
	return nil
}

type sqlxExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
