package service

import (
	"context"
	"fmt"

	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// RatingService lets customers rate providers on completed requests.
// One rating per customer per request; re-rating overwrites.
type RatingService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewRatingService creates a new rating service
func NewRatingService(st *store.Store, redis *redisclient.Client) *RatingService {
	return &RatingService{
		store:  st,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// RateRequest records the customer's score for the provider matched on a
// completed request.
func (rs *RatingService) RateRequest(ctx context.Context, requestID, customerID int64, score int, comment string) (*models.ProviderRating, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.RateRequest")
	defer span.End()

	if score < 1 || score > 5 {
		return nil, fmt.Errorf("score must be between 1 and 5: %w", ErrValidation)
	}

	req, err := rs.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusCompleted {
		return nil, fmt.Errorf("request %d is %s, not completed: %w", requestID, req.Status, store.ErrStateConflict)
	}
	if req.MatchedProviderID == nil {
		return nil, fmt.Errorf("request %d has no matched provider: %w", requestID, store.ErrStateConflict)
	}
	if req.CustomerID == nil || *req.CustomerID != customerID {
		return nil, fmt.Errorf("request %d does not belong to customer %d: %w", requestID, customerID, store.ErrNotFound)
	}

	rating := &models.ProviderRating{
		ProviderID:       *req.MatchedProviderID,
		CustomerID:       customerID,
		ServiceRequestID: requestID,
		Score:            score,
		Comment:          comment,
	}
	if err := rs.store.UpsertProviderRating(ctx, rating); err != nil {
		return nil, err
	}
	rs.logger.Info("Provider rated",
		zap.Int64("provider_id", rating.ProviderID),
		zap.Int64("request_id", requestID),
		zap.Int("score", score))

	// Average changed; cached search results are ordered by rating.
	if err := rs.redis.InvalidateSearchResults(ctx); err != nil {
		rs.logger.Warn("Failed to invalidate search cache", zap.Error(err))
	}
	return rating, nil
}

// GetRating retrieves the rating left on a request, if any.
func (rs *RatingService) GetRating(ctx context.Context, requestID int64) (*models.ProviderRating, error) {
	return rs.store.GetRatingByRequest(ctx, requestID)
}

// DeleteRating withdraws a rating and refreshes the provider average.
func (rs *RatingService) DeleteRating(ctx context.Context, ratingID int64) error {
	if err := rs.store.DeleteProviderRating(ctx, ratingID); err != nil {
		return err
	}
	if err := rs.redis.InvalidateSearchResults(ctx); err != nil {
		rs.logger.Warn("Failed to invalidate search cache", zap.Error(err))
	}
	return nil
}
