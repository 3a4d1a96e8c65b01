package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// ComplianceRepository provides create/list persistence for
// PolicyAcceptance and DataDeletionRequest rows. (expansion:
// schema-completeness per SPEC_FULL.md section 3 — no business logic
// beyond create/list, the compliance workflow itself is out of scope.)
type ComplianceRepository struct {
	db *DB
}

// RecordPolicyAcceptance inserts a new acceptance row.
func (r *ComplianceRepository) RecordPolicyAcceptance(ctx context.Context, p *models.PolicyAcceptance) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO policy_acceptances (id, user_id, policy_type, policy_version, accepted_at)
		 VALUES ($1, $2, $3, $4, now())`,
		p.ID, p.UserID, p.PolicyType, p.PolicyVersion)
	return err
}

// ListPolicyAcceptances returns every acceptance row for a user.
func (r *ComplianceRepository) ListPolicyAcceptances(ctx context.Context, userID string) ([]*models.PolicyAcceptance, error) {
	var out []*models.PolicyAcceptance
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, policy_type, policy_version, accepted_at
		 FROM policy_acceptances WHERE user_id = $1 ORDER BY accepted_at DESC`, userID)
	return out, err
}

// CreateDeletionRequest inserts a pending data-deletion request,
// scheduled 30 days out per the retention grace period convention
// original_source's compliance routes use.
func (r *ComplianceRepository) CreateDeletionRequest(ctx context.Context, req *models.DataDeletionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.ScheduledDeletionDate.IsZero() {
		req.ScheduledDeletionDate = time.Now().AddDate(0, 0, 30)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO data_deletion_requests (id, user_id, user_email, requested_at, scheduled_deletion_date, status)
		 VALUES ($1, $2, $3, now(), $4, 'pending')`,
		req.ID, req.UserID, req.UserEmail, req.ScheduledDeletionDate)
	return err
}

// ListPendingDeletions returns every request still awaiting deletion.
func (r *ComplianceRepository) ListPendingDeletions(ctx context.Context) ([]*models.DataDeletionRequest, error) {
	var out []*models.DataDeletionRequest
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, user_id, user_email, requested_at, scheduled_deletion_date, status, completed_at
		 FROM data_deletion_requests WHERE status = 'pending' ORDER BY scheduled_deletion_date ASC`)
	return out, err
}
