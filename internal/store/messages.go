package store

import (
	"context"

	"marketplace-service/internal/models"
)

// CreateMessage appends a line to a request's message thread
func (s *Store) CreateMessage(ctx context.Context, msg *models.RequestMessage) error {
	query := `
		INSERT INTO request_messages (service_request_id, sender_role, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, msg, query, msg.ServiceRequestID, msg.SenderRole, msg.Body)
}

// GetMessagesByRequest retrieves a request's thread in order
func (s *Store) GetMessagesByRequest(ctx context.Context, requestID int64) ([]models.RequestMessage, error) {
	var msgs []models.RequestMessage
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT * FROM request_messages WHERE service_request_id = $1 ORDER BY created_at, id", requestID)
	return msgs, err
}
