package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/matching"
	"marketplace-service/internal/models"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleManager repairs offer staleness: expiring overdue offers, sending
// reminders, and re-dispatching requests whose offer pool drained. It runs
// lazily at the top of read-heavy endpoints and from the background worker;
// both paths share the same idempotent sweep.
type LifecycleManager struct {
	store          *store.Store
	dispatcher     *Dispatcher
	notifier       notify.Notifier
	eventPublisher *broker.EventPublisher
	business       config.BusinessConfig
	logger         *zap.Logger
}

// NewLifecycleManager creates a new offer lifecycle manager
func NewLifecycleManager(
	st *store.Store,
	dispatcher *Dispatcher,
	notifier notify.Notifier,
	eventPublisher *broker.EventPublisher,
	business config.BusinessConfig,
) *LifecycleManager {
	return &LifecycleManager{
		store:          st,
		dispatcher:     dispatcher,
		notifier:       notifier,
		eventPublisher: eventPublisher,
		business:       business,
		logger:         util.GetLogger(),
	}
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Backfilled    int64 `json:"backfilled"`
	Expired       int   `json:"expired"`
	RemindersSent int   `json:"reminders_sent"`
	Reconciled    int   `json:"reconciled"`
	Redispatched  int   `json:"redispatched"`
}

// Sweep runs one full lifecycle pass. Running it twice back-to-back leaves
// state untouched the second time.
func (lm *LifecycleManager) Sweep(ctx context.Context) (*SweepStats, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleManager.Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	stats := &SweepStats{}
	now := time.Now()

	backfilled, err := lm.store.BackfillOfferExpiries(ctx, lm.business.OfferExpiryMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill offer expiries: %w", err)
	}
	stats.Backfilled = backfilled

	expired, err := lm.store.ExpireDueOffers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire offers: %w", err)
	}
	stats.Expired = len(expired)
	util.SweepExpirations.Observe(float64(len(expired)))

	expiredByRequest := make(map[int64][]int64)
	for _, offer := range expired {
		util.OffersExpiredTotal.Inc()
		expiredByRequest[offer.ServiceRequestID] = append(expiredByRequest[offer.ServiceRequestID], offer.ID)
	}

	for requestID, offerIDs := range expiredByRequest {
		event := &models.OffersExpiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOffersExpired,
				Timestamp: now,
			},
			RequestID: requestID,
			OfferIDs:  offerIDs,
		}
		if err := lm.eventPublisher.PublishOffersExpired(ctx, event); err != nil {
			lm.logger.Error("Failed to publish OffersExpired event", zap.Error(err))
		}
	}

	sent, err := lm.sendReminders(ctx, now)
	if err != nil {
		return nil, err
	}
	stats.RemindersSent = sent

	for requestID := range expiredByRequest {
		redispatched, err := lm.reconcile(ctx, requestID)
		if err != nil {
			return nil, err
		}
		stats.Reconciled++
		if redispatched {
			stats.Redispatched++
		}
	}

	return stats, nil
}

// sendReminders nudges providers whose pending offers are about to expire.
// A failed reminder is logged and left unmarked, so the next sweep retries.
func (lm *LifecycleManager) sendReminders(ctx context.Context, now time.Time) (int, error) {
	windowEnd := now.Add(time.Duration(lm.business.OfferReminderMinutes) * time.Minute)
	due, err := lm.store.GetOffersDueReminder(ctx, now, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load reminder candidates: %w", err)
	}

	sent := 0
	for _, offer := range due {
		provider, err := lm.store.GetProviderByID(ctx, offer.ProviderID)
		if err != nil {
			lm.logger.Error("Failed to load provider for reminder",
				zap.Int64("offer_id", offer.ID), zap.Error(err))
			continue
		}

		result := lm.notifier.Send(ctx, provider.Phone, notify.ReminderMessage(offer.Token, *offer.ExpiresAt))
		if !result.Sent {
			util.NotificationFailuresTotal.WithLabelValues(result.Detail).Inc()
			lm.logger.Warn("Reminder delivery failed",
				zap.Int64("offer_id", offer.ID),
				zap.String("detail", result.Detail))
			continue
		}

		if err := lm.store.MarkReminderSent(ctx, offer.ID, now); err != nil {
			return sent, fmt.Errorf("failed to mark reminder sent: %w", err)
		}
		util.OfferRemindersSentTotal.Inc()
		sent++
	}

	return sent, nil
}

// reconcile settles one request after its offers changed under the sweep.
// Returns true when a new dispatch wave went out.
func (lm *LifecycleManager) reconcile(ctx context.Context, requestID int64) (bool, error) {
	req, err := lm.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return false, err
	}

	accepted, err := lm.store.CountOffersByStatus(ctx, requestID, models.OfferStatusAccepted)
	if err != nil {
		return false, err
	}
	pending, err := lm.store.CountOffersByStatus(ctx, requestID, models.OfferStatusPending)
	if err != nil {
		return false, err
	}

	switch matching.Reconcile(req.Status, accepted > 0, pending > 0) {
	case matching.ReconcileSkip:
		return false, nil

	case matching.ReconcilePendingCustomer:
		if req.Status != models.RequestStatusPendingCustomer {
			if err := lm.store.UpdateRequestStatus(ctx, requestID, models.RequestStatusPendingCustomer); err != nil {
				return false, err
			}
		}
		return false, nil

	case matching.ReconcilePendingProvider:
		if req.Status != models.RequestStatusPendingProvider {
			if err := lm.store.UpdateRequestStatus(ctx, requestID, models.RequestStatusPendingProvider); err != nil {
				return false, err
			}
		}
		return false, nil

	default:
		result, err := lm.dispatcher.DispatchNext(ctx, req)
		if err != nil {
			return false, err
		}
		lm.logger.Info("Sweep redispatched request",
			zap.Int64("request_id", requestID),
			zap.String("result", string(result.Result)))
		return result.Result == matching.WavePlanned, nil
	}
}
