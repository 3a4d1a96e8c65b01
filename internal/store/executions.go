package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// ExecutionRepository provides WorkflowExecution persistence. Writes
// are idempotent by execution id (an UPSERT), matching spec.md section
// 4.8's "persistence idempotent-by-execution-id" requirement so a
// crash-and-replay of the same execution never duplicates rows.
type ExecutionRepository struct {
	db *DB
}

// Upsert inserts a new execution row or overwrites the existing one
// with the same id.
func (r *ExecutionRepository) Upsert(ctx context.Context, e *models.WorkflowExecution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_executions
		   (id, workflow_id, status, progress, current_node, results, errors, execution_time, started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   progress = EXCLUDED.progress,
		   current_node = EXCLUDED.current_node,
		   results = EXCLUDED.results,
		   errors = EXCLUDED.errors,
		   execution_time = EXCLUDED.execution_time,
		   started_at = EXCLUDED.started_at,
		   completed_at = EXCLUDED.completed_at`,
		e.ID, e.WorkflowID, e.Status, e.Progress, e.CurrentNode, e.Results, e.Errors, e.ExecutionTime, e.StartedAt, e.CompletedAt, e.CreatedAt)
	return err
}

// GetByID loads a single execution.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var e models.WorkflowExecution
	err := r.db.GetContext(ctx, &e,
		`SELECT id, workflow_id, status, progress, current_node, results, errors, execution_time, started_at, completed_at, created_at
		 FROM workflow_executions WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err, "workflow_execution", id)
	}
	return &e, nil
}

// ListForWorkflow returns executions for a definition, most recent first.
func (r *ExecutionRepository) ListForWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []*models.WorkflowExecution
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, workflow_id, status, progress, current_node, results, errors, execution_time, started_at, completed_at, created_at
		 FROM workflow_executions WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2`, workflowID, limit)
	return out, err
}
