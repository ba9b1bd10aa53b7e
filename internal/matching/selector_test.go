package matching

import (
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provider(id int64, name, district string, rating float64) models.Provider {
	return models.Provider{
		ID:       id,
		FullName: name,
		City:     "Girne",
		District: district,
		Rating:   rating,
	}
}

func TestBuildTiersSplitsDistrictFirst(t *testing.T) {
	providers := []models.Provider{
		provider(1, "Ali", "Merkez", 4.0),
		provider(2, "Veli", "Karakum", 5.0),
		provider(3, "Ayse", "Merkez", 4.8),
		provider(4, "Fatma", "Lapta", 3.2),
	}

	tiers := BuildTiers("Merkez", providers)
	require.Len(t, tiers, 2)

	assert.Equal(t, []int64{3, 1}, ids(tiers[0]), "district tier sorted by rating desc")
	assert.Equal(t, []int64{2, 4}, ids(tiers[1]), "city remainder sorted by rating desc")
}

func TestBuildTiersDistrictMatchIsCaseInsensitive(t *testing.T) {
	providers := []models.Provider{
		provider(1, "Ali", "merkez", 4.0),
		provider(2, "Veli", "Karakum", 5.0),
	}

	tiers := BuildTiers("MERKEZ", providers)
	require.Len(t, tiers, 2)
	assert.Equal(t, []int64{1}, ids(tiers[0]))
}

func TestBuildTiersAnyDistrictCollapsesToOneTier(t *testing.T) {
	providers := []models.Provider{
		provider(1, "Ali", "Merkez", 4.0),
		provider(2, "Veli", "Karakum", 5.0),
		provider(3, "Ayse", "Lapta", 4.8),
	}

	tiers := BuildTiers(AnyDistrict, providers)
	require.Len(t, tiers, 1)
	assert.Equal(t, []int64{2, 3, 1}, ids(tiers[0]))
}

func TestBuildTiersTieBreaksByName(t *testing.T) {
	providers := []models.Provider{
		provider(1, "Veli", "Merkez", 4.5),
		provider(2, "Ali", "Merkez", 4.5),
	}

	tiers := BuildTiers("Merkez", providers)
	require.Len(t, tiers, 1)
	assert.Equal(t, []int64{2, 1}, ids(tiers[0]))
}

func TestBuildTiersEmptyInput(t *testing.T) {
	assert.Nil(t, BuildTiers("Merkez", nil))
}

func TestPlanWaveFirstUncontactedTier(t *testing.T) {
	tiers := [][]models.Provider{
		{provider(1, "Ali", "Merkez", 4.0), provider(2, "Veli", "Merkez", 3.0)},
		{provider(3, "Ayse", "Lapta", 5.0)},
	}

	wave, result := PlanWave(tiers, map[int64]bool{})
	assert.Equal(t, WavePlanned, result)
	assert.Equal(t, []int64{1, 2}, ids(wave))

	wave, result = PlanWave(tiers, map[int64]bool{1: true, 2: true})
	assert.Equal(t, WavePlanned, result)
	assert.Equal(t, []int64{3}, ids(wave))
}

func TestPlanWavePartialTierOnlySendsRemainder(t *testing.T) {
	tiers := [][]models.Provider{
		{provider(1, "Ali", "Merkez", 4.0), provider(2, "Veli", "Merkez", 3.0)},
	}

	wave, result := PlanWave(tiers, map[int64]bool{1: true})
	assert.Equal(t, WavePlanned, result)
	assert.Equal(t, []int64{2}, ids(wave))
}

func TestPlanWaveExhausted(t *testing.T) {
	tiers := [][]models.Provider{
		{provider(1, "Ali", "Merkez", 4.0)},
	}

	wave, result := PlanWave(tiers, map[int64]bool{1: true})
	assert.Nil(t, wave)
	assert.Equal(t, WaveAllContacted, result)
}

func TestPlanWaveNoTiers(t *testing.T) {
	wave, result := PlanWave(nil, map[int64]bool{})
	assert.Nil(t, wave)
	assert.Equal(t, WaveNoCandidates, result)
}

func ids(providers []models.Provider) []int64 {
	out := make([]int64, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.ID)
	}
	return out
}
