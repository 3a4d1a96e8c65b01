package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// AlertRepository provides Alert persistence (C6's durable state).
type AlertRepository struct {
	db *DB
}

// Create inserts a new alert, assigning an id if the caller left one
// unset.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	channelsJSON, err := json.Marshal(alert.NotificationChannels)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, ticker, condition, target_price, notification_channels, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		alert.ID, alert.UserID, alert.Ticker, alert.Condition, alert.TargetPrice, channelsJSON, alert.IsActive, alert.CreatedAt)
	return err
}

// GetByID loads a single alert.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := r.db.GetContext(ctx, &a,
		`SELECT id, user_id, ticker, condition, target_price, notification_channels, is_active, created_at, triggered_at
		 FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err, "alert", id)
	}
	if err := decodeChannels(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActiveForTicker returns every active alert watching ticker, the
// query the price ticker loop (C11) and alert evaluator (C6) run on
// each tick.
func (r *AlertRepository) ListActiveForTicker(ctx context.Context, ticker string) ([]*models.Alert, error) {
	var alerts []*models.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT id, user_id, ticker, condition, target_price, notification_channels, is_active, created_at, triggered_at
		 FROM alerts WHERE ticker = $1 AND is_active = true`, ticker)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if err := decodeChannels(a); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// ListForUser returns every alert owned by userID.
func (r *AlertRepository) ListForUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	var alerts []*models.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT id, user_id, ticker, condition, target_price, notification_channels, is_active, created_at, triggered_at
		 FROM alerts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if err := decodeChannels(a); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// MarkTriggered flips is_active to false and stamps triggered_at,
// implementing the single irreversible transition spec.md section 4.6
// requires (a second call against an already-inactive alert affects no
// rows, which is how the caller detects it already fired).
func (r *AlertRepository) MarkTriggered(ctx context.Context, id string, triggeredAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET is_active = false, triggered_at = $2 WHERE id = $1 AND is_active = true`,
		id, triggeredAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func decodeChannels(a *models.Alert) error {
	if a.NotificationChannelsDB == "" {
		return nil
	}
	return json.Unmarshal([]byte(a.NotificationChannelsDB), &a.NotificationChannels)
}
