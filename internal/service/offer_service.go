package service

import (
	"context"
	"fmt"
	"strconv"
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

// OfferService handles provider-side offer responses, both from the API
// and from inbound WhatsApp replies.
type OfferService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	dispatcher     *Dispatcher
	business       config.BusinessConfig
	countryCode    string
	logger         *zap.Logger
}

// NewOfferService creates a new offer service
func NewOfferService(
	st *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	dispatcher *Dispatcher,
	business config.BusinessConfig,
	countryCode string,
) *OfferService {
	return &OfferService{
		store:          st,
		redis:          redis,
		eventPublisher: eventPublisher,
		dispatcher:     dispatcher,
		business:       business,
		countryCode:    countryCode,
		logger:         util.GetLogger(),
	}
}

// AcceptOffer records a provider's acceptance and quote, debiting the
// quote-credit cost from their wallet in the same transaction. A nil
// quoteAmount is only legal on the reply channel, where the provider
// cannot attach structured pricing; the API handler requires a quote.
func (os *OfferService) AcceptOffer(ctx context.Context, offerID int64, quoteAmount *int64, quoteNote string) (*models.ProviderOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.AcceptOffer")
	defer span.End()

	if quoteAmount != nil && *quoteAmount <= 0 {
		return nil, fmt.Errorf("quote amount must be positive: %w", ErrValidation)
	}

	now := time.Now()
	offer, balanceAfter, err := os.store.AcceptOfferTx(ctx, offerID, quoteAmount, quoteNote,
		os.business.QuoteCreditCost, os.business.InitialCreditGrant, now)
	if err != nil {
		if err == store.ErrInsufficientCredit {
			util.WalletRejectionsTotal.Inc()
		}
		return nil, err
	}

	util.OffersAcceptedTotal.Inc()
	if os.business.QuoteCreditCost > 0 {
		util.WalletDebitsTotal.Inc()
	}
	os.logger.Info("Offer accepted",
		zap.Int64("offer_id", offer.ID),
		zap.Int64("request_id", offer.ServiceRequestID),
		zap.Int64("provider_id", offer.ProviderID),
		zap.Int64("balance_after", balanceAfter))

	var quote int64
	if offer.QuoteAmount != nil {
		quote = *offer.QuoteAmount
	}
	accepted := &models.OfferAcceptedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOfferAccepted,
			Timestamp: now,
		},
		RequestID:   offer.ServiceRequestID,
		OfferID:     offer.ID,
		ProviderID:  offer.ProviderID,
		QuoteAmount: quote,
	}
	if err := os.eventPublisher.PublishOfferAccepted(ctx, accepted); err != nil {
		os.logger.Error("Failed to publish OfferAccepted event", zap.Error(err))
	}

	if os.business.QuoteCreditCost > 0 {
		debited := &models.WalletDebitedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeWalletDebited,
				Timestamp: now,
			},
			ProviderID:   offer.ProviderID,
			Amount:       -os.business.QuoteCreditCost,
			BalanceAfter: balanceAfter,
			OfferID:      offer.ID,
		}
		if err := os.eventPublisher.PublishWalletDebited(ctx, debited); err != nil {
			os.logger.Error("Failed to publish WalletDebited event", zap.Error(err))
		}
	}

	if err := os.redis.InvalidateOfferToken(ctx, offer.Token); err != nil {
		os.logger.Warn("Failed to invalidate offer token", zap.Error(err))
	}

	return offer, nil
}

// RejectOffer records a provider's decline. When the decline leaves the
// request with no live offers and no fresh candidates, the request is
// deleted rather than parked.
func (os *OfferService) RejectOffer(ctx context.Context, offerID int64) error {
	ctx, span := util.StartSpan(ctx, "OfferService.RejectOffer")
	defer span.End()

	offer, err := os.store.GetOfferByID(ctx, offerID)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := os.store.RejectPendingOffer(ctx, offerID, now); err != nil {
		return err
	}
	util.OffersRejectedTotal.Inc()

	rejected := &models.OfferRejectedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOfferRejected,
			Timestamp: now,
		},
		RequestID:  offer.ServiceRequestID,
		OfferID:    offer.ID,
		ProviderID: offer.ProviderID,
	}
	if err := os.eventPublisher.PublishOfferRejected(ctx, rejected); err != nil {
		os.logger.Error("Failed to publish OfferRejected event", zap.Error(err))
	}

	if err := os.redis.InvalidateOfferToken(ctx, offer.Token); err != nil {
		os.logger.Warn("Failed to invalidate offer token", zap.Error(err))
	}

	return os.settleAfterDecline(ctx, offer.ServiceRequestID)
}

// settleAfterDecline decides where a request lands once an offer leaves
// the pending pool. The decision itself is matching.Reconcile plus
// matching.DeleteAfterDispatch; this method only executes it.
func (os *OfferService) settleAfterDecline(ctx context.Context, requestID int64) error {
	req, err := os.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return err
	}

	accepted, err := os.store.CountOffersByStatus(ctx, requestID, models.OfferStatusAccepted)
	if err != nil {
		return err
	}
	pending, err := os.store.CountOffersByStatus(ctx, requestID, models.OfferStatusPending)
	if err != nil {
		return err
	}

	switch matching.Reconcile(req.Status, accepted > 0, pending > 0) {
	case matching.ReconcileSkip, matching.ReconcilePendingProvider:
		return nil
	case matching.ReconcilePendingCustomer:
		if req.Status != models.RequestStatusPendingCustomer {
			return os.store.UpdateRequestStatus(ctx, requestID, models.RequestStatusPendingCustomer)
		}
		return nil
	}

	result, err := os.dispatcher.DispatchNext(ctx, req)
	if err != nil {
		return err
	}
	if !matching.DeleteAfterDispatch(result.Result) {
		return nil
	}

	// Every eligible provider has been asked and declined.
	if err := os.store.DeleteRequestCascade(ctx, requestID); err != nil {
		return err
	}
	util.RequestsDeletedTotal.WithLabelValues("all-rejected").Inc()
	os.logger.Info("Request deleted after all providers declined",
		zap.Int64("request_id", requestID))

	deleted := &models.RequestDeletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRequestDeleted,
			Timestamp: time.Now(),
		},
		RequestID: requestID,
		Reason:    "all-rejected",
	}
	if err := os.eventPublisher.PublishRequestDeleted(ctx, deleted); err != nil {
		os.logger.Error("Failed to publish RequestDeleted event", zap.Error(err))
	}
	return nil
}

// ReplyOutcome is the human-readable response sent back on the inbound
// message channel.
type ReplyOutcome struct {
	Handled bool
	Message string
}

// HandleReply processes an inbound WhatsApp reply like "ACCEPT A1B2C3D4E5".
// The sender's phone must match the offer's provider.
func (os *OfferService) HandleReply(ctx context.Context, fromPhone, body string) (*ReplyOutcome, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.HandleReply")
	defer span.End()

	action, token := notify.ParseReply(body)
	if action == notify.ReplyUnknown || token == "" {
		return &ReplyOutcome{
			Handled: false,
			Message: "Sorry, I did not understand that. Reply ACCEPT <CODE> or REJECT <CODE>.",
		}, nil
	}

	offer, err := os.lookupOfferByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return &ReplyOutcome{
			Handled: false,
			Message: "That code is not valid or the offer has already closed.",
		}, nil
	}

	provider, err := os.store.GetProviderByID(ctx, offer.ProviderID)
	if err != nil {
		return nil, err
	}
	sender := notify.NormalizePhone(notify.StripWhatsAppPrefix(fromPhone), os.countryCode)
	expected := notify.NormalizePhone(provider.Phone, os.countryCode)
	if sender == "" || sender != expected {
		os.logger.Warn("Reply sender does not match offer provider",
			zap.Int64("offer_id", offer.ID),
			zap.String("from", fromPhone))
		return &ReplyOutcome{
			Handled: false,
			Message: "That code does not belong to this number.",
		}, nil
	}

	switch action {
	case notify.ReplyAccept:
		if _, err := os.AcceptOffer(ctx, offer.ID, nil, ""); err != nil {
			switch err {
			case store.ErrInsufficientCredit:
				return &ReplyOutcome{
					Handled: false,
					Message: "You are out of quote credits. Top up to keep accepting jobs.",
				}, nil
			case store.ErrStateConflict:
				return &ReplyOutcome{
					Handled: false,
					Message: "That offer has already closed.",
				}, nil
			}
			return nil, err
		}
		return &ReplyOutcome{
			Handled: true,
			Message: "Accepted. The customer will see your offer and can pick you shortly.",
		}, nil
	case notify.ReplyReject:
		if err := os.RejectOffer(ctx, offer.ID); err != nil {
			if err == store.ErrStateConflict {
				return &ReplyOutcome{
					Handled: false,
					Message: "That offer has already closed.",
				}, nil
			}
			return nil, err
		}
		return &ReplyOutcome{
			Handled: true,
			Message: "Declined. You will not be contacted again for this job.",
		}, nil
	}

	return &ReplyOutcome{Handled: false, Message: "Unsupported command."}, nil
}

// lookupOfferByToken goes through the redis cache first, falling back to
// the pending-offer index in the store. Either path re-checks the offer
// is still pending.
func (os *OfferService) lookupOfferByToken(ctx context.Context, token string) (*models.ProviderOffer, error) {
	if offerID, err := os.redis.LookupOfferToken(ctx, token); err == nil && offerID > 0 {
		offer, err := os.store.GetOfferByID(ctx, offerID)
		if err == nil && offer.Status == models.OfferStatusPending {
			return offer, nil
		}
		os.logger.Debug("Stale offer token in cache",
			zap.String("token", token),
			zap.String("offer_id", strconv.FormatInt(offerID, 10)))
	}
	return os.store.GetPendingOfferByToken(ctx, token)
}
