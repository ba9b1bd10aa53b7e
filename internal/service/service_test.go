package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	// Girne harbour to Lefkosa center, roughly 22km
	d := haversineKm(35.3364, 33.3182, 35.1856, 33.3823)
	assert.InDelta(t, 22.0, d, 2.0)

	// Same point is zero
	assert.InDelta(t, 0.0, haversineKm(35.3364, 33.3182, 35.3364, 33.3182), 0.001)
}

func TestSearchCacheKeyIsCaseInsensitive(t *testing.T) {
	ss := &SearchService{}

	a := ss.cacheKey(SearchParams{ServiceTypeID: 1, City: "Girne", District: "Karakum", Limit: 20})
	b := ss.cacheKey(SearchParams{ServiceTypeID: 1, City: "girne", District: "KARAKUM", Limit: 20})
	assert.Equal(t, a, b)

	c := ss.cacheKey(SearchParams{ServiceTypeID: 2, City: "Girne", District: "Karakum", Limit: 20})
	assert.NotEqual(t, a, c)
}

func TestDispatchFallsThroughFailedWave(t *testing.T) {
	// Exercising the tier fallthrough needs a database and a stubbed
	// notifier; covered by the integration environment.
	t.Skip("Requires database and notifier stub")
}

func TestRejectLastOfferDeletesRequest(t *testing.T) {
	t.Skip("Requires database")
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Skip("Requires database")
}
