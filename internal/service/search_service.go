package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"marketplace-service/internal/locations"
	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

const (
	searchCacheTTL     = 2 * time.Minute
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	earthRadiusKm      = 6371.0
)

// SearchService is the customer-facing provider directory lookup, with a
// short-lived redis cache in front of the database.
type SearchService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewSearchService creates a new search service
func NewSearchService(st *store.Store, redis *redisclient.Client) *SearchService {
	return &SearchService{
		store:  st,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// SearchParams filters the provider directory. When Latitude/Longitude
// are set, results are re-ordered by distance instead of rating.
type SearchParams struct {
	ServiceTypeID int64
	City          string
	District      string
	Latitude      *float64
	Longitude     *float64
	Limit         int
}

// SearchResult is one directory hit; DistanceKm is only set on
// location-aware searches for providers with known coordinates.
type SearchResult struct {
	Provider   models.Provider `json:"provider"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
}

// SearchProviders queries the directory. Rating-ordered searches are
// cached; location-aware ones go straight to the database since the
// origin point varies per caller.
func (ss *SearchService) SearchProviders(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	ctx, span := util.StartSpan(ctx, "SearchService.SearchProviders")
	defer span.End()

	if params.City != "" && !locations.ValidCity(params.City) {
		return nil, fmt.Errorf("unknown city %q: %w", params.City, ErrValidation)
	}
	if params.Limit <= 0 {
		params.Limit = defaultSearchLimit
	}
	if params.Limit > maxSearchLimit {
		params.Limit = maxSearchLimit
	}

	byDistance := params.Latitude != nil && params.Longitude != nil
	cacheKey := ""
	if !byDistance {
		cacheKey = ss.cacheKey(params)
		var cached []SearchResult
		found, err := ss.redis.GetSearchResults(ctx, cacheKey, &cached)
		if err != nil {
			ss.logger.Warn("Search cache lookup failed", zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	providers, err := ss.store.SearchProviders(ctx, params.ServiceTypeID, params.City, params.District, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("provider search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(providers))
	for _, p := range providers {
		r := SearchResult{Provider: p}
		if byDistance && p.Latitude != nil && p.Longitude != nil {
			d := haversineKm(*params.Latitude, *params.Longitude, *p.Latitude, *p.Longitude)
			r.DistanceKm = &d
		}
		results = append(results, r)
	}

	if byDistance {
		sort.SliceStable(results, func(i, j int) bool {
			di, dj := results[i].DistanceKm, results[j].DistanceKm
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return *di < *dj
		})
	} else if cacheKey != "" {
		if err := ss.redis.CacheSearchResults(ctx, cacheKey, results, searchCacheTTL); err != nil {
			ss.logger.Warn("Search cache store failed", zap.Error(err))
		}
	}

	return results, nil
}

func (ss *SearchService) cacheKey(params SearchParams) string {
	return fmt.Sprintf("%d:%s:%s:%d",
		params.ServiceTypeID,
		strings.ToLower(params.City),
		strings.ToLower(params.District),
		params.Limit)
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
