package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"marketplace-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing matching domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func requestKey(requestID int64) string {
	return fmt.Sprintf("request-%d", requestID)
}

// PublishRequestCreated publishes RequestCreated event
func (ep *EventPublisher) PublishRequestCreated(ctx context.Context, event *models.RequestCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishOffersDispatched publishes OffersDispatched event
func (ep *EventPublisher) PublishOffersDispatched(ctx context.Context, event *models.OffersDispatchedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishOfferAccepted publishes OfferAccepted event
func (ep *EventPublisher) PublishOfferAccepted(ctx context.Context, event *models.OfferAcceptedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishOfferRejected publishes OfferRejected event
func (ep *EventPublisher) PublishOfferRejected(ctx context.Context, event *models.OfferRejectedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishOffersExpired publishes OffersExpired event
func (ep *EventPublisher) PublishOffersExpired(ctx context.Context, event *models.OffersExpiredEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishRequestMatched publishes RequestMatched event
func (ep *EventPublisher) PublishRequestMatched(ctx context.Context, event *models.RequestMatchedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishRequestCancelled publishes RequestCancelled event
func (ep *EventPublisher) PublishRequestCancelled(ctx context.Context, event *models.RequestCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishRequestCompleted publishes RequestCompleted event
func (ep *EventPublisher) PublishRequestCompleted(ctx context.Context, event *models.RequestCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishRequestDeleted publishes RequestDeleted event
func (ep *EventPublisher) PublishRequestDeleted(ctx context.Context, event *models.RequestDeletedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishAppointmentCompleted publishes AppointmentCompleted event
func (ep *EventPublisher) PublishAppointmentCompleted(ctx context.Context, event *models.AppointmentCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, requestKey(event.RequestID), event)
}

// PublishWalletDebited publishes WalletDebited event
func (ep *EventPublisher) PublishWalletDebited(ctx context.Context, event *models.WalletDebitedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("provider-%d", event.ProviderID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onRequestMatched   func(context.Context, *models.RequestMatchedEvent) error
	onRequestCompleted func(context.Context, *models.RequestCompletedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnRequestMatched registers a handler for RequestMatched events
func (eh *EventHandler) OnRequestMatched(handler func(context.Context, *models.RequestMatchedEvent) error) {
	eh.onRequestMatched = handler
}

// OnRequestCompleted registers a handler for RequestCompleted events
func (eh *EventHandler) OnRequestCompleted(handler func(context.Context, *models.RequestCompletedEvent) error) {
	eh.onRequestCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeRequestMatched:
		if eh.onRequestMatched != nil {
			var event models.RequestMatchedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RequestMatched event: %w", err)
			}
			return eh.onRequestMatched(ctx, &event)
		}

	case models.EventTypeRequestCompleted:
		if eh.onRequestCompleted != nil {
			var event models.RequestCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RequestCompleted event: %w", err)
			}
			return eh.onRequestCompleted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
