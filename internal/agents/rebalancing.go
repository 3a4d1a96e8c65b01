package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/stockassistant/orchestrator/internal/models"
)

// PortfolioStore is the subset of internal/store.PortfolioRepository
// the rebalancing agent needs.
type PortfolioStore interface {
	GetOrCreateForUser(ctx context.Context, userID string) (*models.Portfolio, error)
	ListPositions(ctx context.Context, portfolioID string) ([]*models.StockPosition, error)
}

// Suggestion is one buy/sell recommendation the rebalancing agent
// emits for a single ticker.
type Suggestion struct {
	Ticker            string  `json:"ticker"`
	Action            string  `json:"action"`
	Reason            string  `json:"reason"`
	CurrentAllocation float64 `json:"current_allocation"`
	TargetAllocation  float64 `json:"target_allocation"`
	SuggestedAmount   float64 `json:"suggested_amount"`
}

// rebalanceThresholdPct is the minimum allocation drift, in percentage
// points, before this agent suggests acting on it — matching
// original_source's RebalancingAgent (`abs(difference) > 5.0`).
const rebalanceThresholdPct = 5.0

// NewRebalancingAgent builds the rebalancing agent: it loads the
// caller's portfolio, prices every position through tools, computes
// current allocation percentages, and compares them against
// state.Context["target_allocation"] (falling back to equal weighting
// when absent, matching original_source's RebalancingAgent).
func NewRebalancingAgent(portfolios PortfolioStore, tools ToolCaller) Func {
	return func(ctx context.Context, state State) State {
		state.CurrentNode = "rebalancing"
		userID, _ := state.Context["user_id"].(string)
		if userID == "" {
			state.Errors = append(state.Errors, "rebalancing agent error: user_id not provided in context")
			return state
		}

		portfolio, err := portfolios.GetOrCreateForUser(ctx, userID)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("rebalancing agent error: %v", err))
			return state
		}
		positions, err := portfolios.ListPositions(ctx, portfolio.ID)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("rebalancing agent error: %v", err))
			return state
		}
		if state.Results == nil {
			state.Results = map[string]any{}
		}
		if len(positions) == 0 {
			state.Results["rebalancing"] = map[string]any{"suggestions": []Suggestion{}, "message": "No portfolio positions to analyze"}
			return state
		}

		positionValues := make(map[string]float64, len(positions))
		totalValue := 0.0
		for _, pos := range positions {
			var quote struct {
				Price float64 `json:"price"`
			}
			if err := tools.CallTool(ctx, getQuoteTool, map[string]any{"symbol": pos.Ticker}, &quote); err != nil {
				state.Errors = append(state.Errors, fmt.Sprintf("rebalancing agent: pricing %s failed: %v", pos.Ticker, err))
				continue
			}
			value := quote.Price * pos.Quantity
			positionValues[pos.Ticker] += value
			totalValue += value
		}

		currentAllocation := make(map[string]float64, len(positionValues))
		for ticker, value := range positionValues {
			if totalValue > 0 {
				currentAllocation[ticker] = (value / totalValue) * 100
			}
		}

		target, _ := state.Context["target_allocation"].(map[string]float64)
		if len(target) == 0 {
			target = equalWeightTarget(positionValues)
		}

		suggestions := suggestRebalance(currentAllocation, positionValues, target, totalValue)

		state.Results["rebalancing"] = map[string]any{
			"composition": map[string]any{
				"total_value":  totalValue,
				"allocations":  currentAllocation,
			},
			"suggestions": suggestions,
		}
		return state
	}
}

func equalWeightTarget(positionValues map[string]float64) map[string]float64 {
	if len(positionValues) == 0 {
		return nil
	}
	target := make(map[string]float64, len(positionValues))
	even := 100.0 / float64(len(positionValues))
	for ticker := range positionValues {
		target[ticker] = even
	}
	return target
}

func suggestRebalance(current, positionValues, target map[string]float64, totalValue float64) []Suggestion {
	var suggestions []Suggestion
	for ticker, targetPct := range target {
		currentPct := current[ticker]
		difference := targetPct - currentPct
		if difference < 0 {
			difference = -difference
		}
		if difference <= rebalanceThresholdPct {
			continue
		}

		targetValue := (targetPct / 100) * totalValue
		currentValue := positionValues[ticker]
		amountDifference := targetValue - currentValue

		action := "sell"
		reason := fmt.Sprintf("Overweight by %.1f%% (current: %.1f%%, target: %.1f%%)", difference, currentPct, targetPct)
		if amountDifference > 0 {
			action = "buy"
			reason = fmt.Sprintf("Underweight by %.1f%% (current: %.1f%%, target: %.1f%%)", difference, currentPct, targetPct)
		}
		if amountDifference < 0 {
			amountDifference = -amountDifference
		}

		suggestions = append(suggestions, Suggestion{
			Ticker:            ticker,
			Action:            action,
			Reason:            reason,
			CurrentAllocation: round2(currentPct),
			TargetAllocation:  round2(targetPct),
			SuggestedAmount:   round2(amountDifference),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		di := absDiff(suggestions[i].CurrentAllocation, suggestions[i].TargetAllocation)
		dj := absDiff(suggestions[j].CurrentAllocation, suggestions[j].TargetAllocation)
		return di > dj
	})
	return suggestions
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
