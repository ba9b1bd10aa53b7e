package matching

import (
	"math"
	"sort"

	"marketplace-service/internal/models"
)

// Score weights. Price dominates, rating second, dispatch-wave earliness a
// small nudge; they sum to 100.
const (
	priceWeight  = 55.0
	ratingWeight = 35.0
	speedWeight  = 10.0

	// Offers accepted without a quote amount get a flat mid-band price score.
	noQuotePriceScore = 22.0
)

// ScoredOffer annotates an accepted offer with its comparison sub-scores.
type ScoredOffer struct {
	Offer          models.ProviderOffer `json:"offer"`
	ProviderRating float64              `json:"provider_rating"`
	PriceScore     float64              `json:"price_score"`
	RatingScore    float64              `json:"rating_score"`
	SpeedScore     float64              `json:"speed_score"`
	Total          float64              `json:"total"`
}

// ScoreOffers ranks the accepted offers of one request best-first.
// ratings maps provider id to the provider's current average rating.
func ScoreOffers(offers []models.ProviderOffer, ratings map[int64]float64) []ScoredOffer {
	if len(offers) == 0 {
		return nil
	}

	minQuote, maxQuote, hasQuotes := quoteRange(offers)
	minSeq, maxSeq := sequenceRange(offers)

	scored := make([]ScoredOffer, 0, len(offers))
	for _, offer := range offers {
		rating := ratings[offer.ProviderID]

		so := ScoredOffer{
			Offer:          offer,
			ProviderRating: rating,
			PriceScore:     priceScore(offer.QuoteAmount, minQuote, maxQuote, hasQuotes),
			RatingScore:    clamp(ratingWeight*rating/5.0, 0, ratingWeight),
			SpeedScore:     speedScore(offer.Sequence, minSeq, maxSeq),
		}
		so.Total = round1(so.PriceScore + so.RatingScore + so.SpeedScore)
		scored = append(scored, so)
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		qa, qb := quoteOrWorst(a.Offer.QuoteAmount), quoteOrWorst(b.Offer.QuoteAmount)
		if qa != qb {
			return qa < qb
		}
		if a.ProviderRating != b.ProviderRating {
			return a.ProviderRating > b.ProviderRating
		}
		return a.Offer.ID < b.Offer.ID
	})

	return scored
}

func priceScore(quote *int64, minQuote, maxQuote int64, hasQuotes bool) float64 {
	if quote == nil {
		return noQuotePriceScore
	}
	if !hasQuotes || minQuote == maxQuote {
		return priceWeight
	}
	spread := float64(maxQuote - minQuote)
	score := priceWeight * (1 - float64(*quote-minQuote)/spread)
	return clamp(score, 0, priceWeight)
}

func speedScore(sequence, minSeq, maxSeq int) float64 {
	if minSeq == maxSeq || maxSeq <= 1 {
		return speedWeight
	}
	score := speedWeight * float64(maxSeq-sequence) / float64(maxSeq-1)
	return clamp(score, 0, speedWeight)
}

func quoteRange(offers []models.ProviderOffer) (minQuote, maxQuote int64, hasQuotes bool) {
	for _, offer := range offers {
		if offer.QuoteAmount == nil {
			continue
		}
		q := *offer.QuoteAmount
		if !hasQuotes {
			minQuote, maxQuote, hasQuotes = q, q, true
			continue
		}
		if q < minQuote {
			minQuote = q
		}
		if q > maxQuote {
			maxQuote = q
		}
	}
	return minQuote, maxQuote, hasQuotes
}

func sequenceRange(offers []models.ProviderOffer) (minSeq, maxSeq int) {
	minSeq, maxSeq = offers[0].Sequence, offers[0].Sequence
	for _, offer := range offers[1:] {
		if offer.Sequence < minSeq {
			minSeq = offer.Sequence
		}
		if offer.Sequence > maxSeq {
			maxSeq = offer.Sequence
		}
	}
	return minSeq, maxSeq
}

func quoteOrWorst(quote *int64) int64 {
	if quote == nil {
		return math.MaxInt64
	}
	return *quote
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
