package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
)

const sweepLockKey = "offer-sweep"

// SweepWorker runs the offer lifecycle sweep on a timer. A redis lock
// keeps concurrent replicas from sweeping at the same time; the sweep
// itself is idempotent, so a lost lock only costs duplicate work.
type SweepWorker struct {
	lifecycle *service.LifecycleManager
	redis     *redisclient.Client
	interval  time.Duration
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(lifecycle *service.LifecycleManager, redis *redisclient.Client, business config.BusinessConfig) *SweepWorker {
	return &SweepWorker{
		lifecycle: lifecycle,
		redis:     redis,
		interval:  time.Duration(business.SweepIntervalSeconds) * time.Second,
	}
}

// Start runs the sweep loop until the context is cancelled
func (sw *SweepWorker) Start(ctx context.Context) error {
	log.Println("Starting sweep worker...")

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sw.runOnce(ctx)
		}
	}
}

func (sw *SweepWorker) runOnce(ctx context.Context) {
	acquired, err := sw.redis.AcquireLock(ctx, sweepLockKey, sw.interval)
	if err != nil {
		log.Printf("Sweep lock error: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := sw.redis.ReleaseLock(ctx, sweepLockKey); err != nil {
			log.Printf("Failed to release sweep lock: %v", err)
		}
	}()

	stats, err := sw.lifecycle.Sweep(ctx)
	if err != nil {
		log.Printf("Sweep failed: %v", err)
		return
	}
	if stats.Expired > 0 || stats.RemindersSent > 0 || stats.Redispatched > 0 {
		log.Printf("Sweep: expired=%d reminders=%d redispatched=%d",
			stats.Expired, stats.RemindersSent, stats.Redispatched)
	}
}

// MatchWorker consumes matching events and sends the out-of-band
// notifications they imply. Event IDs are recorded in processed_events
// so redelivered messages do not notify twice.
type MatchWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	notifier     notify.Notifier
}

// NewMatchWorker creates a new match worker
func NewMatchWorker(consumer *broker.Consumer, st *store.Store, notifier notify.Notifier) *MatchWorker {
	mw := &MatchWorker{
		consumer: consumer,
		store:    st,
		notifier: notifier,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRequestMatched(mw.handleRequestMatched)
	eventHandler.OnRequestCompleted(mw.handleRequestCompleted)
	mw.eventHandler = eventHandler

	return mw
}

// Start starts the worker
func (mw *MatchWorker) Start(ctx context.Context) error {
	log.Println("Starting match worker...")
	return mw.consumer.StartConsuming(ctx, mw.eventHandler.HandleMessage)
}

// Stop stops the worker
func (mw *MatchWorker) Stop() error {
	log.Println("Stopping match worker...")
	return mw.consumer.Close()
}

func (mw *MatchWorker) handleRequestMatched(ctx context.Context, event *models.RequestMatchedEvent) error {
	processed, err := mw.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	provider, err := mw.store.GetProviderByID(ctx, event.ProviderID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Good news! The customer picked your offer for request #%d. Contact them at %s to arrange the visit.",
		event.RequestID, event.CustomerPhone)
	result := mw.notifier.Send(ctx, provider.Phone, message)
	if result.Attempted && !result.Sent {
		log.Printf("Match notification failed for provider %d: %s", provider.ID, result.Detail)
	}

	return mw.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (mw *MatchWorker) handleRequestCompleted(ctx context.Context, event *models.RequestCompletedEvent) error {
	processed, err := mw.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	if event.ProviderID > 0 {
		provider, err := mw.store.GetProviderByID(ctx, event.ProviderID)
		if err == nil {
			message := fmt.Sprintf("Request #%d is closed. Thanks for the work!", event.RequestID)
			mw.notifier.Send(ctx, provider.Phone, message)
		}
	}

	return mw.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
