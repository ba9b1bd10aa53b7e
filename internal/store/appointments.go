package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/lib/pq"
)

// GetAppointmentByRequest retrieves the appointment for a request, nil if none
func (s *Store) GetAppointmentByRequest(ctx context.Context, requestID int64) (*models.ServiceAppointment, error) {
	var appt models.ServiceAppointment
	err := s.db.GetContext(ctx, &appt,
		"SELECT * FROM service_appointments WHERE service_request_id = $1", requestID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// GetAppointmentByID retrieves an appointment by ID
func (s *Store) GetAppointmentByID(ctx context.Context, id int64) (*models.ServiceAppointment, error) {
	var appt models.ServiceAppointment
	err := s.db.GetContext(ctx, &appt, "SELECT * FROM service_appointments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// CreateAppointment creates the appointment for a matched request
func (s *Store) CreateAppointment(ctx context.Context, appt *models.ServiceAppointment) error {
	query := `
		INSERT INTO service_appointments
			(service_request_id, provider_id, status, scheduled_for, customer_note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, appt, query,
		appt.ServiceRequestID, appt.ProviderID, appt.Status, appt.ScheduledFor, appt.CustomerNote)
}

// RescheduleAppointment overwrites the slot and customer note and restarts
// provider confirmation from pending.
func (s *Store) RescheduleAppointment(ctx context.Context, apptID int64, scheduledFor time.Time, customerNote string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE service_appointments
		SET status = $1, scheduled_for = $2, customer_note = $3, provider_note = '', updated_at = NOW()
		WHERE id = $4`,
		models.AppointmentStatusPending, scheduledFor, customerNote, apptID)
	return err
}

// TransitionAppointment moves an appointment from one status to another,
// optionally recording a provider note. Zero rows affected means the
// appointment was not in the expected prior state.
func (s *Store) TransitionAppointment(ctx context.Context, apptID int64, fromStatuses []string, toStatus, providerNote string) error {
	query := `
		UPDATE service_appointments
		SET status = $1,
		    provider_note = CASE WHEN $2 <> '' THEN $2 ELSE provider_note END,
		    updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)`

	res, err := s.db.ExecContext(ctx, query, toStatus, providerNote, apptID, pq.Array(fromStatuses))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("appointment %d not in expected state for %s: %w", apptID, toStatus, ErrStateConflict)
	}
	return nil
}

// CompleteAppointmentTx closes a confirmed appointment and cascades: the
// parent request becomes completed (if not already) and its message thread
// is purged.
func (s *Store) CompleteAppointmentTx(ctx context.Context, apptID int64) (*models.ServiceAppointment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var appt models.ServiceAppointment
	err = tx.GetContext(ctx, &appt,
		"SELECT * FROM service_appointments WHERE id = $1 FOR UPDATE", apptID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment %d: %w", apptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock appointment: %w", err)
	}

	if appt.Status != models.AppointmentStatusConfirmed {
		return nil, fmt.Errorf("appointment %d is %s, not confirmed: %w", apptID, appt.Status, ErrStateConflict)
	}

	err = tx.GetContext(ctx, &appt, `
		UPDATE service_appointments SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING *`,
		models.AppointmentStatusCompleted, apptID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete appointment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE service_requests SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> $1`,
		models.RequestStatusCompleted, appt.ServiceRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete parent request: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM request_messages WHERE service_request_id = $1", appt.ServiceRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to purge message thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &appt, nil
}
