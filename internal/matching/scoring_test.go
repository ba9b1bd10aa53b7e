package matching

import (
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoted(id, providerID, amount int64, sequence int) models.ProviderOffer {
	return models.ProviderOffer{
		ID:          id,
		ProviderID:  providerID,
		QuoteAmount: &amount,
		Sequence:    sequence,
		Status:      models.OfferStatusAccepted,
	}
}

func TestScoreOffersCheapestWinsPriceBand(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 1800, 1),
		quoted(2, 20, 950, 1),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 5.0, 20: 5.0})
	require.Len(t, scored, 2)

	assert.Equal(t, int64(2), scored[0].Offer.ID)
	assert.Equal(t, 55.0, scored[0].PriceScore)
	assert.Equal(t, 0.0, scored[1].PriceScore)
}

func TestScoreOffersEqualQuotesGetFullPriceScore(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 1200, 1),
		quoted(2, 20, 1200, 1),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.0, 20: 3.0})
	for _, so := range scored {
		assert.Equal(t, 55.0, so.PriceScore)
	}
	// Price tied, so rating decides
	assert.Equal(t, int64(1), scored[0].Offer.ID)
}

func TestScoreOffersNoQuoteGetsFlatMidBand(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 1000, 1),
		{ID: 2, ProviderID: 20, Sequence: 1, Status: models.OfferStatusAccepted},
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.0, 20: 4.0})
	byID := map[int64]ScoredOffer{}
	for _, so := range scored {
		byID[so.Offer.ID] = so
	}

	assert.Equal(t, 22.0, byID[2].PriceScore)
	assert.Equal(t, 55.0, byID[1].PriceScore, "sole quote is min and max")
}

func TestScoreOffersRatingScale(t *testing.T) {
	offers := []models.ProviderOffer{quoted(1, 10, 1000, 1)}

	scored := ScoreOffers(offers, map[int64]float64{10: 2.5})
	assert.Equal(t, 17.5, scored[0].RatingScore)

	scored = ScoreOffers(offers, map[int64]float64{})
	assert.Equal(t, 0.0, scored[0].RatingScore, "unknown provider rating scores zero")
}

func TestScoreOffersSpeedFavorsEarlierWaves(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 1000, 1),
		quoted(2, 20, 1000, 3),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.0, 20: 4.0})
	byID := map[int64]ScoredOffer{}
	for _, so := range scored {
		byID[so.Offer.ID] = so
	}

	assert.Equal(t, 10.0, byID[1].SpeedScore)
	assert.Equal(t, 0.0, byID[2].SpeedScore)
}

func TestScoreOffersSingleWaveGetsFullSpeed(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 900, 2),
		quoted(2, 20, 1100, 2),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.0, 20: 4.0})
	for _, so := range scored {
		assert.Equal(t, 10.0, so.SpeedScore)
	}
}

func TestScoreOffersDeterministicTieBreak(t *testing.T) {
	// Identical quotes, ratings, and waves leave only the offer ID
	offers := []models.ProviderOffer{
		quoted(7, 10, 1000, 1),
		quoted(3, 20, 1000, 1),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.0, 20: 4.0})
	assert.Equal(t, int64(3), scored[0].Offer.ID)
	assert.Equal(t, int64(7), scored[1].Offer.ID)
}

func TestScoreOffersEmpty(t *testing.T) {
	assert.Nil(t, ScoreOffers(nil, nil))
}

func TestScoreOffersTotalIsRounded(t *testing.T) {
	offers := []models.ProviderOffer{
		quoted(1, 10, 900, 1),
		quoted(2, 20, 1000, 1),
		quoted(3, 30, 1200, 1),
	}

	scored := ScoreOffers(offers, map[int64]float64{10: 4.3, 20: 3.7, 30: 4.9})
	for _, so := range scored {
		assert.InDelta(t, so.Total, float64(int(so.Total*10))/10, 0.001)
	}
}
