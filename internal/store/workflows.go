package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// WorkflowRepository provides WorkflowDefinition persistence (C8/C9).
type WorkflowRepository struct {
	db *DB
}

// Create inserts a new workflow definition.
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.WorkflowDefinition) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflows (id, user_id, name, workflow_type, definition, execution_mode, schedule, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wf.ID, wf.UserID, wf.Name, wf.WorkflowType, wf.Definition, wf.ExecutionMode, wf.Schedule, wf.IsActive, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// GetByID loads a single workflow definition.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var wf models.WorkflowDefinition
	err := r.db.GetContext(ctx, &wf,
		`SELECT id, user_id, name, workflow_type, definition, execution_mode, schedule, is_active, created_at, updated_at
		 FROM workflows WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err, "workflow", id)
	}
	return &wf, nil
}

// ListActiveScheduled returns every active, schedule-bearing workflow
// definition, used to re-arm the scheduler (C9) on process restart.
func (r *WorkflowRepository) ListActiveScheduled(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	var out []*models.WorkflowDefinition
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, name, workflow_type, definition, execution_mode, schedule, is_active, created_at, updated_at
		 FROM workflows WHERE is_active = true AND schedule IS NOT NULL`)
	return out, err
}

// ListForUser returns every workflow definition owned by userID.
func (r *WorkflowRepository) ListForUser(ctx context.Context, userID string) ([]*models.WorkflowDefinition, error) {
	var out []*models.WorkflowDefinition
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, name, workflow_type, definition, execution_mode, schedule, is_active, created_at, updated_at
		 FROM workflows WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return out, err
}

// SetSchedule updates a definition's cron schedule (nil clears it).
func (r *WorkflowRepository) SetSchedule(ctx context.Context, id string, schedule *string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflows SET schedule = $2, updated_at = now() WHERE id = $1`, id, schedule)
	return err
}

// SetActive flips a definition's is_active flag, used to cancel a
// schedule without deleting the definition.
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflows SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	return err
}
