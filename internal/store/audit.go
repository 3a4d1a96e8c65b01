package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// AuditLogRepository provides append-only AuditLogEntry persistence.
// (expansion: supplemented from original_source's AuditLog table —
// written whenever an Alert is created/triggered, a Workflow
// Definition is created, or a schedule is cancelled.)
type AuditLogRepository struct {
	db *DB
}

// Record inserts a new audit log row.
func (r *AuditLogRepository) Record(ctx context.Context, e *models.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, user_id, action, resource_type, resource_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Details)
	return err
}

// ListForUser returns the most recent audit entries for a user.
func (r *AuditLogRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*models.AuditLogEntry
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, action, resource_type, resource_id, details, created_at
		 FROM audit_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	return out, err
}
