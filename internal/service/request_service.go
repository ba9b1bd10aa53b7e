package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/locations"
	"marketplace-service/internal/matching"
	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Duplicate-submission keys outlive any realistic client retry window.
const idempotencyTTL = 24 * time.Hour

// RequestService drives the service-request matching state machine.
type RequestService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	dispatcher     *Dispatcher
	lifecycle      *LifecycleManager
	logger         *zap.Logger
}

// NewRequestService creates a new request service
func NewRequestService(
	st *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	dispatcher *Dispatcher,
	lifecycle *LifecycleManager,
) *RequestService {
	return &RequestService{
		store:          st,
		redis:          redis,
		eventPublisher: eventPublisher,
		dispatcher:     dispatcher,
		lifecycle:      lifecycle,
		logger:         util.GetLogger(),
	}
}

// CreateRequestRequest is the payload for creating a service request.
type CreateRequestRequest struct {
	CustomerID     *int64 `json:"customer_id,omitempty"`
	CustomerName   string `json:"customer_name" binding:"required"`
	CustomerPhone  string `json:"customer_phone" binding:"required"`
	City           string `json:"city" binding:"required"`
	District       string `json:"district" binding:"required"`
	ServiceTypeID  int64  `json:"service_type_id" binding:"required"`
	Details        string `json:"details" binding:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateRequestResponse reports the created request and its first dispatch.
type CreateRequestResponse struct {
	RequestID int64               `json:"request_id"`
	Status    string              `json:"status"`
	Dispatch  matching.WaveResult `json:"dispatch"`
}

// CreateRequest validates, persists, and immediately dispatches the first
// offer wave for a new service request.
func (rs *RequestService) CreateRequest(ctx context.Context, req *CreateRequestRequest) (*CreateRequestResponse, error) {
	ctx, span := util.StartSpan(ctx, "RequestService.CreateRequest")
	defer span.End()

	if !locations.ValidCity(req.City) {
		return nil, fmt.Errorf("unknown city %q: %w", req.City, ErrValidation)
	}
	if !locations.ValidDistrict(req.City, req.District) {
		return nil, fmt.Errorf("unknown district %q for city %q: %w", req.District, req.City, ErrValidation)
	}
	if _, err := rs.store.GetServiceTypeByID(ctx, req.ServiceTypeID); err != nil {
		return nil, fmt.Errorf("unknown service type %d: %w", req.ServiceTypeID, ErrValidation)
	}
	if strings.TrimSpace(req.Details) == "" {
		return nil, fmt.Errorf("details are required: %w", ErrValidation)
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	// Redis remembers recent keys; the database mapping is authoritative.
	if cachedID, err := rs.redis.LookupIdempotentRequest(ctx, req.IdempotencyKey); err != nil {
		rs.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
	} else if cachedID > 0 {
		if cached, err := rs.store.GetRequestByID(ctx, cachedID); err == nil {
			rs.logger.Info("Duplicate request submission detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("request_id", cached.ID))
			return &CreateRequestResponse{
				RequestID: cached.ID,
				Status:    cached.Status,
			}, nil
		}
	}

	existing, err := rs.store.GetRequestByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		rs.logger.Info("Duplicate request submission detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("request_id", existing.ID))
		return &CreateRequestResponse{
			RequestID: existing.ID,
			Status:    existing.Status,
		}, nil
	}

	request := &models.ServiceRequest{
		CustomerID:     req.CustomerID,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		City:           strings.TrimSpace(req.City),
		District:       strings.TrimSpace(req.District),
		ServiceTypeID:  req.ServiceTypeID,
		Details:        req.Details,
		Status:         models.RequestStatusNew,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := rs.store.CreateServiceRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create service request: %w", err)
	}
	util.RequestsCreatedTotal.Inc()
	rs.logger.Info("Service request created", zap.Int64("request_id", request.ID))

	if err := rs.redis.CacheIdempotentRequest(ctx, request.IdempotencyKey, request.ID, idempotencyTTL); err != nil {
		rs.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}

	event := &models.RequestCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestCreated,
			Timestamp: time.Now(),
		},
		RequestID:     request.ID,
		ServiceTypeID: request.ServiceTypeID,
		City:          request.City,
		District:      request.District,
	}
	if err := rs.eventPublisher.PublishRequestCreated(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RequestCreated event", zap.Error(err))
	}

	dispatch, err := rs.dispatcher.DispatchNext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("initial dispatch failed: %w", err)
	}

	status := models.RequestStatusPendingProvider
	if dispatch.Result != matching.WavePlanned {
		status = models.RequestStatusNew
	}

	return &CreateRequestResponse{
		RequestID: request.ID,
		Status:    status,
		Dispatch:  dispatch.Result,
	}, nil
}

// GetRequest retrieves a request with its offers, sweeping staleness first.
func (rs *RequestService) GetRequest(ctx context.Context, requestID int64) (*models.ServiceRequest, []models.ProviderOffer, error) {
	if _, err := rs.lifecycle.Sweep(ctx); err != nil {
		rs.logger.Error("Lifecycle sweep failed", zap.Error(err))
	}

	req, err := rs.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	offers, err := rs.store.GetOffersByRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	return req, offers, nil
}

// ListCustomerRequests retrieves a customer's requests, sweeping first.
func (rs *RequestService) ListCustomerRequests(ctx context.Context, customerID int64) ([]models.ServiceRequest, error) {
	if _, err := rs.lifecycle.Sweep(ctx); err != nil {
		rs.logger.Error("Lifecycle sweep failed", zap.Error(err))
	}
	return rs.store.GetRequestsByCustomer(ctx, customerID)
}

// GetQuotes returns the accepted offers of a request scored best-first.
func (rs *RequestService) GetQuotes(ctx context.Context, requestID int64) ([]matching.ScoredOffer, error) {
	if _, err := rs.lifecycle.Sweep(ctx); err != nil {
		rs.logger.Error("Lifecycle sweep failed", zap.Error(err))
	}

	if _, err := rs.store.GetRequestByID(ctx, requestID); err != nil {
		return nil, err
	}

	offers, err := rs.store.GetAcceptedOffersByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accepted offers: %w", err)
	}

	ratings := make(map[int64]float64, len(offers))
	for _, offer := range offers {
		if _, ok := ratings[offer.ProviderID]; ok {
			continue
		}
		provider, err := rs.store.GetProviderByID(ctx, offer.ProviderID)
		if err != nil {
			return nil, err
		}
		ratings[provider.ID] = provider.Rating
	}

	return matching.ScoreOffers(offers, ratings), nil
}

// SelectOffer lets the customer pick one accepted offer as the match. The
// store re-validates unmatched status inside a request-row lock.
func (rs *RequestService) SelectOffer(ctx context.Context, requestID, offerID int64) (*models.ProviderOffer, error) {
	ctx, span := util.StartSpan(ctx, "RequestService.SelectOffer")
	defer span.End()

	now := time.Now()
	offer, err := rs.store.SelectOfferTx(ctx, requestID, offerID, now)
	if err != nil {
		return nil, err
	}

	util.RequestsMatchedTotal.Inc()
	rs.logger.Info("Request matched",
		zap.Int64("request_id", requestID),
		zap.Int64("offer_id", offerID),
		zap.Int64("provider_id", offer.ProviderID))

	req, err := rs.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	event := &models.RequestMatchedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestMatched,
			Timestamp: now,
		},
		RequestID:     requestID,
		OfferID:       offer.ID,
		ProviderID:    offer.ProviderID,
		CustomerPhone: req.CustomerPhone,
	}
	if err := rs.eventPublisher.PublishRequestMatched(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RequestMatched event", zap.Error(err))
	}

	if err := rs.redis.InvalidateOfferToken(ctx, offer.Token); err != nil {
		rs.logger.Warn("Failed to invalidate offer token", zap.Error(err))
	}

	return offer, nil
}

// CancelRequest cancels an unmatched request on the customer's behalf.
func (rs *RequestService) CancelRequest(ctx context.Context, requestID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "RequestService.CancelRequest")
	defer span.End()

	if err := rs.store.CancelRequestTx(ctx, requestID, time.Now()); err != nil {
		return err
	}
	util.RequestsCancelledTotal.Inc()

	event := &models.RequestCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestCancelled,
			Timestamp: time.Now(),
		},
		RequestID: requestID,
		Reason:    reason,
	}
	if err := rs.eventPublisher.PublishRequestCancelled(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RequestCancelled event", zap.Error(err))
	}
	return nil
}

// CompleteRequest marks a matched request done, subject to appointment guards.
func (rs *RequestService) CompleteRequest(ctx context.Context, requestID int64) error {
	ctx, span := util.StartSpan(ctx, "RequestService.CompleteRequest")
	defer span.End()

	if err := rs.store.CompleteRequestTx(ctx, requestID, time.Now()); err != nil {
		return err
	}
	util.RequestsCompletedTotal.Inc()

	req, err := rs.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return err
	}

	var providerID int64
	if req.MatchedProviderID != nil {
		providerID = *req.MatchedProviderID
	}
	event := &models.RequestCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestCompleted,
			Timestamp: time.Now(),
		},
		RequestID:  requestID,
		ProviderID: providerID,
	}
	if err := rs.eventPublisher.PublishRequestCompleted(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RequestCompleted event", zap.Error(err))
	}
	return nil
}

// DeleteRequest removes a request the customer cancelled earlier.
func (rs *RequestService) DeleteRequest(ctx context.Context, requestID int64) error {
	if err := rs.store.DeleteCancelledRequest(ctx, requestID); err != nil {
		return err
	}
	util.RequestsDeletedTotal.WithLabelValues("customer").Inc()
	return nil
}

// AddMessage appends to a request's message thread. Threads only exist
// while the request is live; completed requests have theirs purged.
func (rs *RequestService) AddMessage(ctx context.Context, requestID int64, senderRole, body string) (*models.RequestMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("message body is required: %w", ErrValidation)
	}
	if senderRole != models.SenderRoleCustomer && senderRole != models.SenderRoleProvider {
		return nil, fmt.Errorf("unknown sender role %q: %w", senderRole, ErrValidation)
	}

	req, err := rs.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if models.IsRequestTerminal(req.Status) {
		return nil, fmt.Errorf("request %d is %s: %w", requestID, req.Status, store.ErrStateConflict)
	}

	msg := &models.RequestMessage{
		ServiceRequestID: requestID,
		SenderRole:       senderRole,
		Body:             body,
	}
	if err := rs.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// GetMessages retrieves a request's message thread.
func (rs *RequestService) GetMessages(ctx context.Context, requestID int64) ([]models.RequestMessage, error) {
	if _, err := rs.store.GetRequestByID(ctx, requestID); err != nil {
		return nil, err
	}
	return rs.store.GetMessagesByRequest(ctx, requestID)
}
