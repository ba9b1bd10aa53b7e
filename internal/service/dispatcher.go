package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/matching"
	"marketplace-service/internal/models"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrValidation marks synchronous input rejections; nothing was mutated.
var ErrValidation = errors.New("validation failed")

// Dispatcher advances a service request to its next tier of un-contacted
// candidates, broadcasting one offer per provider in the tier.
type Dispatcher struct {
	store          *store.Store
	redis          *redisclient.Client
	notifier       notify.Notifier
	eventPublisher *broker.EventPublisher
	business       config.BusinessConfig
	logger         *zap.Logger
}

// NewDispatcher creates a new offer dispatcher
func NewDispatcher(
	st *store.Store,
	redis *redisclient.Client,
	notifier notify.Notifier,
	eventPublisher *broker.EventPublisher,
	business config.BusinessConfig,
) *Dispatcher {
	return &Dispatcher{
		store:          st,
		redis:          redis,
		notifier:       notifier,
		eventPublisher: eventPublisher,
		business:       business,
		logger:         util.GetLogger(),
	}
}

// DispatchResult reports what a dispatch pass did for one request.
type DispatchResult struct {
	Result matching.WaveResult    `json:"result"`
	Offers []models.ProviderOffer `json:"offers,omitempty"`
}

// DispatchNext sends the next wave of offers for a request. When a whole
// wave fails delivery it walks on to the following tier; with no tier left
// the request is reset to "new" rather than erroring out.
func (d *Dispatcher) DispatchNext(ctx context.Context, req *models.ServiceRequest) (*DispatchResult, error) {
	ctx, span := util.StartSpan(ctx, "Dispatcher.DispatchNext")
	defer span.End()

	providers, err := d.store.GetEligibleProviders(ctx, req.ServiceTypeID, req.City)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible providers: %w", err)
	}
	tiers := matching.BuildTiers(req.District, providers)

	for {
		offeredIDs, err := d.store.GetOfferedProviderIDs(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load offered providers: %w", err)
		}
		offered := make(map[int64]bool, len(offeredIDs))
		for _, id := range offeredIDs {
			offered[id] = true
		}

		wave, result := matching.PlanWave(tiers, offered)
		if result != matching.WavePlanned {
			util.DispatchFailuresTotal.WithLabelValues(string(result)).Inc()
			if err := d.store.ResetRequestMatching(ctx, req.ID, models.RequestStatusNew); err != nil {
				return nil, fmt.Errorf("failed to reset request: %w", err)
			}
			d.logger.Info("No dispatchable providers",
				zap.Int64("request_id", req.ID),
				zap.String("result", string(result)))
			return &DispatchResult{Result: result}, nil
		}

		delivered, err := d.sendWave(ctx, req, wave)
		if err != nil {
			return nil, err
		}

		if len(delivered) > 0 {
			if err := d.store.ResetRequestMatching(ctx, req.ID, models.RequestStatusPendingProvider); err != nil {
				return nil, fmt.Errorf("failed to move request to pending_provider: %w", err)
			}

			event := &models.OffersDispatchedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOffersDispatched,
					Timestamp: time.Now(),
				},
				RequestID:  req.ID,
				Sequence:   delivered[0].Sequence,
				OfferCount: len(delivered),
			}
			for _, offer := range delivered {
				event.ProviderIDs = append(event.ProviderIDs, offer.ProviderID)
			}
			if err := d.eventPublisher.PublishOffersDispatched(ctx, event); err != nil {
				d.logger.Error("Failed to publish OffersDispatched event", zap.Error(err))
			}

			return &DispatchResult{Result: matching.WavePlanned, Offers: delivered}, nil
		}

		// Every delivery in the wave failed; the offers are recorded as
		// failed, so the next loop pass plans the following tier.
		d.logger.Warn("Entire dispatch wave failed delivery",
			zap.Int64("request_id", req.ID),
			zap.Int("wave_size", len(wave)))
	}
}

// sendWave creates one pending offer per provider and attempts delivery.
// Offers whose delivery fails are marked failed and excluded from the
// returned slice.
func (d *Dispatcher) sendWave(ctx context.Context, req *models.ServiceRequest, wave []models.Provider) ([]models.ProviderOffer, error) {
	serviceType, err := d.store.GetServiceTypeByID(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}

	count, err := d.store.CountOffersByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count offers: %w", err)
	}
	sequence := count + 1

	now := time.Now()
	expiry := time.Duration(d.business.OfferExpiryMinutes) * time.Minute
	expiresAt := now.Add(expiry)

	var delivered []models.ProviderOffer
	for _, provider := range wave {
		token, err := d.newToken(ctx)
		if err != nil {
			return nil, err
		}

		offer := &models.ProviderOffer{
			ServiceRequestID: req.ID,
			ProviderID:       provider.ID,
			Token:            token,
			Sequence:         sequence,
			Status:           models.OfferStatusPending,
			SentAt:           now,
			ExpiresAt:        &expiresAt,
		}
		if err := d.store.CreateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("failed to create offer for provider %d: %w", provider.ID, err)
		}
		util.OffersDispatchedTotal.Inc()

		message := notify.OfferMessage(serviceType.Name, req.City, req.District,
			req.CustomerName, req.CustomerPhone, req.Details, token)
		result := d.notifier.Send(ctx, provider.Phone, message)

		if !result.Sent {
			util.NotificationFailuresTotal.WithLabelValues(result.Detail).Inc()
			if err := d.store.MarkOfferFailed(ctx, offer.ID, result.Detail, now); err != nil {
				return nil, fmt.Errorf("failed to mark offer failed: %w", err)
			}
			d.logger.Warn("Offer delivery failed",
				zap.Int64("offer_id", offer.ID),
				zap.Int64("provider_id", provider.ID),
				zap.String("detail", result.Detail))
			continue
		}

		if err := d.store.UpdateOfferDelivery(ctx, offer.ID, result.Detail); err != nil {
			return nil, fmt.Errorf("failed to record delivery detail: %w", err)
		}
		offer.LastDeliveryDetail = result.Detail

		if err := d.redis.CacheOfferToken(ctx, token, offer.ID, expiry); err != nil {
			d.logger.Warn("Failed to cache offer token", zap.Error(err))
		}

		delivered = append(delivered, *offer)
	}

	return delivered, nil
}

// newToken draws reply tokens until one misses the existing set. Collisions
// at this token length are rare enough that a bounded retry suffices.
func (d *Dispatcher) newToken(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		token := matching.NewOfferToken()
		exists, err := d.store.TokenExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to check token: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
	return "", errors.New("could not generate a unique offer token")
}
