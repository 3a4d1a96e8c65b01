// Package alerts implements the Alert Evaluator (C6): the
// above/below price predicate, the single irreversible trigger
// transition, and notification enqueue/delivery. Grounded on spec.md
// section 4.6 and, for the dispatch-then-record shape, on the
// teacher's automation.FunctionDispatcher (check phase decides whether
// to act, act phase records the outcome).
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

// AlertStore is the persistence surface the evaluator needs, narrow
// enough that tests can supply an in-memory fake instead of a live
// Postgres — the same dependency-inversion shape internal/auth uses
// for UserRepository.
type AlertStore interface {
	ListActiveForTicker(ctx context.Context, ticker string) ([]*models.Alert, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Alert, error)
	MarkTriggered(ctx context.Context, id string, triggeredAt time.Time) (bool, error)
}

// NotificationStore persists the Notification row a trigger enqueues.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Broadcaster delivers a notification to a connected user immediately,
// satisfied in production by internal/hub.Hub. The in-app channel is
// the only one this package delivers synchronously; email/push are
// out of scope per spec.md section 4.6.
type Broadcaster interface {
	BroadcastNotification(userID string, n *models.Notification)
}

// inAppChannel is the delivery channel this evaluator can act on
// directly; any other channel name in an alert's set is recorded but
// not pushed (email/push workers are out of scope).
const inAppChannel = "in-app"

const categoryPriceAlert = "price_alert"

// Evaluator runs the above/below predicate and fires the trigger
// transition for alerts that trip it.
type Evaluator struct {
	alerts        AlertStore
	notifications NotificationStore
	hub           Broadcaster
	log           *logging.Logger
}

// New builds an Evaluator. hub may be nil in contexts (tests, batch
// jobs) where in-app delivery isn't available; the trigger still
// persists correctly, it just skips the push.
func New(alerts AlertStore, notifications NotificationStore, hub Broadcaster, log *logging.Logger) *Evaluator {
	if log == nil {
		log = logging.NewDefault("alerts")
	}
	return &Evaluator{alerts: alerts, notifications: notifications, hub: hub, log: log}
}

// Predicate reports whether observed trips condition against
// threshold: above triggers at observed >= threshold, below triggers
// at observed <= threshold.
func Predicate(condition models.AlertCondition, threshold, observed float64) bool {
	switch condition {
	case models.ConditionAbove:
		return observed >= threshold
	case models.ConditionBelow:
		return observed <= threshold
	default:
		return false
	}
}

// TickResult summarizes one evaluation pass for logging/metrics.
type TickResult struct {
	Checked   int
	Triggered int
}

// EvaluateTicker loads every active alert watching ticker and fires
// the ones observedPrice trips. This is the entry point the Price
// Ticker Loop (C11) calls on each tick.
func (e *Evaluator) EvaluateTicker(ctx context.Context, ticker string, observedPrice float64) (TickResult, error) {
	active, err := e.alerts.ListActiveForTicker(ctx, ticker)
	if err != nil {
		return TickResult{}, err
	}
	result := TickResult{Checked: len(active)}
	for _, alert := range active {
		fired, err := e.CheckAlert(ctx, alert, observedPrice)
		if err != nil {
			e.log.WithError(err).WithField("alert_id", alert.ID).Warn("alert evaluation failed")
			continue
		}
		if fired {
			result.Triggered++
		}
	}
	return result, nil
}

// EvaluateForUser loads every active alert owned by userID and checks
// each against the price the caller supplies per ticker. This is the
// entry point the price_alert agent (C7) calls, since an agent already
// holds a per-ticker price map from its own tool calls.
func (e *Evaluator) EvaluateForUser(ctx context.Context, userID string, pricesByTicker map[string]float64) (TickResult, error) {
	owned, err := e.alerts.ListForUser(ctx, userID)
	if err != nil {
		return TickResult{}, err
	}
	var result TickResult
	for _, alert := range owned {
		if !alert.IsActive {
			continue
		}
		observed, ok := pricesByTicker[alert.Ticker]
		if !ok {
			continue
		}
		result.Checked++
		fired, err := e.CheckAlert(ctx, alert, observed)
		if err != nil {
			e.log.WithError(err).WithField("alert_id", alert.ID).Warn("alert evaluation failed")
			continue
		}
		if fired {
			result.Triggered++
		}
	}
	return result, nil
}

// CheckAlert evaluates the predicate for a single alert and, if it
// trips, performs the trigger transition. It returns whether this call
// was the one that fired it — a duplicate call against an
// already-inactive alert returns false, never re-fires.
func (e *Evaluator) CheckAlert(ctx context.Context, alert *models.Alert, observedPrice float64) (bool, error) {
	if !alert.IsActive {
		return false, nil
	}
	if !Predicate(alert.Condition, alert.TargetPrice, observedPrice) {
		return false, nil
	}
	return e.trigger(ctx, alert, observedPrice)
}

// trigger performs the single irreversible transition spec.md section
// 4.6 requires: flip active false, stamp triggered-at, enqueue a
// price_alert notification for the owner. MarkTriggered's row-count
// check makes a second concurrent call against the same alert a no-op,
// so duplicate triggers are structurally impossible.
func (e *Evaluator) trigger(ctx context.Context, alert *models.Alert, observedPrice float64) (bool, error) {
	now := time.Now().UTC()
	fired, err := e.alerts.MarkTriggered(ctx, alert.ID, now)
	if err != nil {
		return false, err
	}
	if !fired {
		return false, nil
	}

	payload, err := json.Marshal(map[string]any{
		"alert_id":     alert.ID,
		"ticker":       alert.Ticker,
		"condition":    alert.Condition,
		"threshold":    alert.TargetPrice,
		"observed":     observedPrice,
		"triggered_at": now,
	})
	if err != nil {
		return true, err
	}

	notification := &models.Notification{
		UserID:    alert.UserID,
		Type:      categoryPriceAlert,
		Title:     "Price alert triggered",
		Message:   alertMessage(alert, observedPrice),
		Data:      payload,
		CreatedAt: now,
	}
	if e.notifications != nil {
		if err := e.notifications.Create(ctx, notification); err != nil {
			e.log.WithError(err).WithField("alert_id", alert.ID).Warn("failed to persist alert notification")
		}
	}

	if e.hub != nil && hasChannel(alert.NotificationChannels, inAppChannel) {
		e.hub.BroadcastNotification(alert.UserID, notification)
	}

	e.log.WithField("alert_id", alert.ID).
		WithField("ticker", alert.Ticker).
		WithField("observed", observedPrice).
		Info("alert triggered")
	return true, nil
}

func alertMessage(alert *models.Alert, observed float64) string {
	direction := "risen to or above"
	if alert.Condition == models.ConditionBelow {
		direction = "fallen to or below"
	}
	return alert.Ticker + " has " + direction + " your target price"
}

func hasChannel(channels []string, target string) bool {
	for _, c := range channels {
		if c == target {
			return true
		}
	}
	return false
}
