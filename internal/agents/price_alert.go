package agents

import (
	"context"
	"fmt"

	"github.com/stockassistant/orchestrator/internal/alerts"
	"github.com/stockassistant/orchestrator/internal/models"
)

// ToolCaller is the narrow surface agents need from the Remote Tool
// Client (C1), satisfied by *toolclient.Client or, in production, a
// wrapper that additionally routes the call through the circuit
// breaker registry and retry executor (C2/C3) — agents never call a
// remote tool server directly without that guard in composition.
type ToolCaller interface {
	CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error
}

// AlertLister is the subset of internal/store.AlertRepository the
// price_alert agent needs to discover which tickers a user watches.
type AlertLister interface {
	ListForUser(ctx context.Context, userID string) ([]*models.Alert, error)
}

// AlertEvaluator is the subset of internal/alerts.Evaluator the
// price_alert agent drives once it has fetched current prices.
type AlertEvaluator interface {
	EvaluateForUser(ctx context.Context, userID string, pricesByTicker map[string]float64) (alerts.TickResult, error)
}

const getQuoteTool = "get_quote"

// NewPriceAlertAgent builds the price_alert agent: it loads the
// caller's active alerts, fetches a current price per distinct ticker
// through tools, and hands the price map to the alert evaluator (C6),
// matching original_source's PriceAlertAgent.__call__.
func NewPriceAlertAgent(listAlerts AlertLister, tools ToolCaller, evaluator AlertEvaluator) Func {
	return func(ctx context.Context, state State) State {
		state.CurrentNode = "price_alert"
		userID, _ := state.Context["user_id"].(string)
		if userID == "" {
			state.Errors = append(state.Errors, "price_alert agent error: user_id not provided in context")
			return state
		}

		owned, err := listAlerts.ListForUser(ctx, userID)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("price_alert agent error: %v", err))
			return state
		}

		tickers := map[string]bool{}
		for _, a := range owned {
			if a.IsActive {
				tickers[a.Ticker] = true
			}
		}

		prices := make(map[string]float64, len(tickers))
		for ticker := range tickers {
			var quote struct {
				Price float64 `json:"price"`
			}
			if err := tools.CallTool(ctx, getQuoteTool, map[string]any{"symbol": ticker}, &quote); err != nil {
				state.Errors = append(state.Errors, fmt.Sprintf("price_alert agent: fetching %s failed: %v", ticker, err))
				continue
			}
			prices[ticker] = quote.Price
		}

		result, err := evaluator.EvaluateForUser(ctx, userID, prices)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("price_alert agent error: %v", err))
			return state
		}

		if state.Results == nil {
			state.Results = map[string]any{}
		}
		state.Results["price_alert"] = map[string]any{
			"checked":   result.Checked,
			"triggered": result.Triggered,
		}
		return state
	}
}
