package matching

import (
	"sort"
	"strings"

	"marketplace-service/internal/models"
)

// AnyDistrict is the sentinel district meaning the customer takes providers
// from anywhere in the city.
const AnyDistrict = "any"

// BuildTiers orders a request's eligible providers into dispatch tiers.
// With a concrete district the first tier holds district-exact matches and
// the second the remaining city matches; with the any-district sentinel a
// single tier holds everyone. Tiers are sorted rating descending then name
// ascending, and empty tiers are omitted.
func BuildTiers(district string, providers []models.Provider) [][]models.Provider {
	if len(providers) == 0 {
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(district), AnyDistrict) {
		tier := sortTier(providers)
		return [][]models.Provider{tier}
	}

	var districtTier, cityTier []models.Provider
	for _, p := range providers {
		if strings.EqualFold(p.District, district) {
			districtTier = append(districtTier, p)
		} else {
			cityTier = append(cityTier, p)
		}
	}

	tiers := make([][]models.Provider, 0, 2)
	if len(districtTier) > 0 {
		tiers = append(tiers, sortTier(districtTier))
	}
	if len(cityTier) > 0 {
		tiers = append(tiers, sortTier(cityTier))
	}
	return tiers
}

func sortTier(providers []models.Provider) []models.Provider {
	tier := make([]models.Provider, len(providers))
	copy(tier, providers)
	sort.Slice(tier, func(i, j int) bool {
		if tier[i].Rating != tier[j].Rating {
			return tier[i].Rating > tier[j].Rating
		}
		return tier[i].FullName < tier[j].FullName
	})
	return tier
}

// WaveResult describes what a dispatch planning pass produced.
type WaveResult string

const (
	WavePlanned      WaveResult = "offers-created"
	WaveNoCandidates WaveResult = "no-candidates"
	WaveAllContacted WaveResult = "all-contacted"
)

// PlanWave walks the tiers in order and returns the providers of the first
// tier containing someone not yet offered. Every planned offer shares one
// sequence number, so a wave is a broadcast to the whole remaining tier.
func PlanWave(tiers [][]models.Provider, offered map[int64]bool) ([]models.Provider, WaveResult) {
	if len(tiers) == 0 {
		return nil, WaveNoCandidates
	}

	for _, tier := range tiers {
		var wave []models.Provider
		for _, p := range tier {
			if !offered[p.ID] {
				wave = append(wave, p)
			}
		}
		if len(wave) > 0 {
			return wave, WavePlanned
		}
	}

	return nil, WaveAllContacted
}
