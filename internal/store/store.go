package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors surfaced by guarded mutations. Callers map these to the
// validation / state-conflict / resource-exhaustion branches of the API.
var (
	ErrNotFound           = errors.New("not found")
	ErrStateConflict      = errors.New("state conflict")
	ErrInsufficientCredit = errors.New("insufficient credit")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetServiceTypeByID retrieves a service type by ID
func (s *Store) GetServiceTypeByID(ctx context.Context, id int64) (*models.ServiceType, error) {
	var st models.ServiceType
	err := s.db.GetContext(ctx, &st, "SELECT * FROM service_types WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service type %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetServiceTypes retrieves all service types ordered by name
func (s *Store) GetServiceTypes(ctx context.Context) ([]models.ServiceType, error) {
	var types []models.ServiceType
	err := s.db.SelectContext(ctx, &types, "SELECT * FROM service_types ORDER BY name")
	return types, err
}

// GetProviderByID retrieves a provider by ID
func (s *Store) GetProviderByID(ctx context.Context, id int64) (*models.Provider, error) {
	var provider models.Provider
	err := s.db.GetContext(ctx, &provider, "SELECT * FROM providers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetProviderByPhone retrieves a provider by normalized phone number
func (s *Store) GetProviderByPhone(ctx context.Context, phone string) (*models.Provider, error) {
	var provider models.Provider
	err := s.db.GetContext(ctx, &provider, "SELECT * FROM providers WHERE phone = $1", phone)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider phone %s: %w", phone, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetEligibleProviders retrieves the available providers offering the given
// service type in a city (case-insensitive). Tier ordering is done in Go.
func (s *Store) GetEligibleProviders(ctx context.Context, serviceTypeID int64, city string) ([]models.Provider, error) {
	var providers []models.Provider
	err := s.db.SelectContext(ctx, &providers, `
		SELECT p.* FROM providers p
		JOIN provider_service_types pst ON pst.provider_id = p.id
		WHERE p.is_available = TRUE
		  AND pst.service_type_id = $1
		  AND LOWER(p.city) = LOWER($2)`,
		serviceTypeID, city)
	return providers, err
}

// SearchProviders retrieves available providers with optional filters, for
// the public listing. Filters are substring matches like the legacy search.
func (s *Store) SearchProviders(ctx context.Context, serviceTypeID int64, city, district string, limit int) ([]models.Provider, error) {
	query := `
		SELECT DISTINCT p.* FROM providers p
		JOIN provider_service_types pst ON pst.provider_id = p.id
		WHERE p.is_available = TRUE`
	args := []interface{}{}

	if serviceTypeID > 0 {
		args = append(args, serviceTypeID)
		query += fmt.Sprintf(" AND pst.service_type_id = $%d", len(args))
	}
	if strings.TrimSpace(city) != "" {
		args = append(args, "%"+strings.TrimSpace(city)+"%")
		query += fmt.Sprintf(" AND p.city ILIKE $%d", len(args))
	}
	if strings.TrimSpace(district) != "" {
		args = append(args, "%"+strings.TrimSpace(district)+"%")
		query += fmt.Sprintf(" AND p.district ILIKE $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY p.rating DESC, p.full_name LIMIT $%d", len(args))

	var providers []models.Provider
	err := s.db.SelectContext(ctx, &providers, query, args...)
	return providers, err
}

// UpsertProviderRating creates or replaces the rating one customer gave for
// one request, then refreshes the provider average within the same
// transaction. Explicit recompute replaces the legacy save-hook behavior.
func (s *Store) UpsertProviderRating(ctx context.Context, rating *models.ProviderRating) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO provider_ratings (provider_id, customer_id, service_request_id, score, comment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_request_id, customer_id)
		DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, rating, query,
		rating.ProviderID, rating.CustomerID, rating.ServiceRequestID, rating.Score, rating.Comment); err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}

	if err := refreshProviderAverageTx(ctx, tx, rating.ProviderID); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteProviderRating removes a rating and refreshes the provider average.
func (s *Store) DeleteProviderRating(ctx context.Context, ratingID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var providerID int64
	err = tx.GetContext(ctx, &providerID,
		"DELETE FROM provider_ratings WHERE id = $1 RETURNING provider_id", ratingID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("rating %d: %w", ratingID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	if err := refreshProviderAverageTx(ctx, tx, providerID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetRatingByRequest retrieves the rating attached to a request, if any.
func (s *Store) GetRatingByRequest(ctx context.Context, requestID int64) (*models.ProviderRating, error) {
	var rating models.ProviderRating
	err := s.db.GetContext(ctx, &rating,
		"SELECT * FROM provider_ratings WHERE service_request_id = $1", requestID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

// refreshProviderAverageTx recomputes a provider's average rating to one
// decimal, 0 when no ratings remain.
func refreshProviderAverageTx(ctx context.Context, tx *sqlx.Tx, providerID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE providers SET rating = COALESCE(
			(SELECT ROUND(AVG(score)::numeric, 1) FROM provider_ratings WHERE provider_id = $1), 0)
		WHERE id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("failed to refresh provider rating: %w", err)
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
