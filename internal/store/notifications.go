package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// NotificationRepository provides Notification persistence, the
// durable side of what the Real-Time Hub (C10) delivers in-app.
type NotificationRepository struct {
	db *DB
}

// Create inserts a new notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, data, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data, n.IsRead, n.CreatedAt)
	return err
}

// ListForUser returns the most recent notifications for a user.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*models.Notification
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, type, title, message, data, is_read, created_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	return out, err
}

// MarkRead flips is_read to true.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE id = $1`, id)
	return err
}
