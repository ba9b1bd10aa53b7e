package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AppointmentService runs the two-leg scheduling handshake: the customer
// proposes a slot, the provider confirms the work, the customer confirms
// the time, and the provider closes it after the visit.
type AppointmentService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(st *store.Store, eventPublisher *broker.EventPublisher) *AppointmentService {
	return &AppointmentService{
		store:          st,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Propose creates or reschedules the appointment for a matched request.
// Rescheduling restarts the handshake from pending.
func (as *AppointmentService) Propose(ctx context.Context, requestID int64, scheduledFor time.Time, customerNote string) (*models.ServiceAppointment, error) {
	ctx, span := util.StartSpan(ctx, "AppointmentService.Propose")
	defer span.End()

	if !scheduledFor.After(time.Now()) {
		return nil, fmt.Errorf("appointment time must be in the future: %w", ErrValidation)
	}

	req, err := as.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusMatched || req.MatchedProviderID == nil {
		return nil, fmt.Errorf("request %d is not matched: %w", requestID, store.ErrStateConflict)
	}

	existing, err := as.store.GetAppointmentByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.AppointmentStatusCompleted {
			return nil, fmt.Errorf("appointment %d is already completed: %w", existing.ID, store.ErrStateConflict)
		}
		if err := as.store.RescheduleAppointment(ctx, existing.ID, scheduledFor, customerNote); err != nil {
			return nil, err
		}
		as.logger.Info("Appointment rescheduled",
			zap.Int64("appointment_id", existing.ID),
			zap.Int64("request_id", requestID),
			zap.Time("scheduled_for", scheduledFor))
		return as.store.GetAppointmentByID(ctx, existing.ID)
	}

	appt := &models.ServiceAppointment{
		ServiceRequestID: requestID,
		ProviderID:       *req.MatchedProviderID,
		Status:           models.AppointmentStatusPending,
		ScheduledFor:     scheduledFor,
		CustomerNote:     customerNote,
	}
	if err := as.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	as.logger.Info("Appointment proposed",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("request_id", requestID),
		zap.Time("scheduled_for", scheduledFor))
	return appt, nil
}

// Get retrieves a request's appointment.
func (as *AppointmentService) Get(ctx context.Context, requestID int64) (*models.ServiceAppointment, error) {
	appt, err := as.store.GetAppointmentByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, fmt.Errorf("appointment for request %d: %w", requestID, store.ErrNotFound)
	}
	return appt, nil
}

// ProviderConfirm is the provider agreeing to do the work at the proposed
// time, passing the ball back to the customer.
func (as *AppointmentService) ProviderConfirm(ctx context.Context, apptID int64, providerNote string) error {
	return as.store.TransitionAppointment(ctx, apptID,
		[]string{models.AppointmentStatusPending},
		models.AppointmentStatusPendingCustomer, providerNote)
}

// ProviderReject is the provider declining the proposed slot. The customer
// can re-propose afterwards.
func (as *AppointmentService) ProviderReject(ctx context.Context, apptID int64, providerNote string) error {
	return as.store.TransitionAppointment(ctx, apptID,
		[]string{models.AppointmentStatusPending},
		models.AppointmentStatusRejected, providerNote)
}

// CustomerConfirm locks in the slot both sides agreed on.
func (as *AppointmentService) CustomerConfirm(ctx context.Context, apptID int64) error {
	return as.store.TransitionAppointment(ctx, apptID,
		[]string{models.AppointmentStatusPendingCustomer},
		models.AppointmentStatusConfirmed, "")
}

// Cancel drops any still-active appointment.
func (as *AppointmentService) Cancel(ctx context.Context, apptID int64) error {
	return as.store.TransitionAppointment(ctx, apptID,
		[]string{
			models.AppointmentStatusPending,
			models.AppointmentStatusPendingCustomer,
			models.AppointmentStatusConfirmed,
		},
		models.AppointmentStatusCancelled, "")
}

// ProviderComplete closes a confirmed appointment after the visit and
// cascades completion to the parent request.
func (as *AppointmentService) ProviderComplete(ctx context.Context, apptID int64) (*models.ServiceAppointment, error) {
	ctx, span := util.StartSpan(ctx, "AppointmentService.ProviderComplete")
	defer span.End()

	appt, err := as.store.CompleteAppointmentTx(ctx, apptID)
	if err != nil {
		return nil, err
	}
	util.RequestsCompletedTotal.Inc()
	as.logger.Info("Appointment completed",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("request_id", appt.ServiceRequestID))

	now := time.Now()
	event := &models.AppointmentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeAppointmentCompleted,
			Timestamp: now,
		},
		RequestID:     appt.ServiceRequestID,
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
	}
	if err := as.eventPublisher.PublishAppointmentCompleted(ctx, event); err != nil {
		as.logger.Error("Failed to publish AppointmentCompleted event", zap.Error(err))
	}

	completed := &models.RequestCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestCompleted,
			Timestamp: now,
		},
		RequestID:  appt.ServiceRequestID,
		ProviderID: appt.ProviderID,
	}
	if err := as.eventPublisher.PublishRequestCompleted(ctx, completed); err != nil {
		as.logger.Error("Failed to publish RequestCompleted event", zap.Error(err))
	}

	return appt, nil
}
