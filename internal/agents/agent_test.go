package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockassistant/orchestrator/internal/alerts"
	"github.com/stockassistant/orchestrator/internal/models"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("noop", func(ctx context.Context, s State) State {
		called = true
		return s
	})

	fn, ok := r.Get("noop")
	require.True(t, ok)
	fn(context.Background(), State{})
	assert.True(t, called)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestStateCloneIsIndependent(t *testing.T) {
	original := State{Context: map[string]any{"user_id": "u1"}, Results: map[string]any{"a": 1}, Errors: []string{"e1"}}
	clone := original.Clone()
	clone.Results["b"] = 2
	clone.Errors[0] = "changed"

	assert.NotContains(t, original.Results, "b")
	assert.Equal(t, "e1", original.Errors[0])
}

type fakeToolCaller struct {
	calls   []string
	results map[string]json.RawMessage
	fail    map[string]bool
}

func (f *fakeToolCaller) CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error {
	f.calls = append(f.calls, toolName)
	if f.fail[toolName] {
		return assertError{toolName}
	}
	raw, ok := f.results[toolName]
	if !ok || dest == nil {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

type assertError struct{ tool string }

func (e assertError) Error() string { return "tool failed: " + e.tool }

type fakeAlertLister struct {
	alerts []*models.Alert
}

func (f *fakeAlertLister) ListForUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	return f.alerts, nil
}

type fakeEvaluator struct {
	lastPrices map[string]float64
	result     alerts.TickResult
}

func (f *fakeEvaluator) EvaluateForUser(ctx context.Context, userID string, pricesByTicker map[string]float64) (alerts.TickResult, error) {
	f.lastPrices = pricesByTicker
	return f.result, nil
}

func TestPriceAlertAgentRequiresUserID(t *testing.T) {
	agent := NewPriceAlertAgent(&fakeAlertLister{}, &fakeToolCaller{}, &fakeEvaluator{})
	state := agent(context.Background(), State{Context: map[string]any{}})
	require.Len(t, state.Errors, 1)
}

func TestPriceAlertAgentWritesCheckedAndTriggeredCounts(t *testing.T) {
	lister := &fakeAlertLister{alerts: []*models.Alert{
		{ID: "a1", Ticker: "AAPL", IsActive: true},
	}}
	evaluator := &fakeEvaluator{result: alerts.TickResult{Checked: 1, Triggered: 1}}
	agent := NewPriceAlertAgent(lister, &fakeToolCaller{}, evaluator)

	state := agent(context.Background(), State{Context: map[string]any{"user_id": "u1"}})
	require.Empty(t, state.Errors)
	result := state.Results["price_alert"].(map[string]any)
	assert.Equal(t, 1, result["checked"])
	assert.Equal(t, 1, result["triggered"])
}

func TestRebalancingAgentRequiresUserID(t *testing.T) {
	agent := NewRebalancingAgent(nil, &fakeToolCaller{})
	state := agent(context.Background(), State{Context: map[string]any{}})
	require.Len(t, state.Errors, 1)
}

func TestEqualWeightTargetSplitsEvenly(t *testing.T) {
	target := equalWeightTarget(map[string]float64{"AAPL": 100, "MSFT": 100})
	assert.InDelta(t, 50, target["AAPL"], 0.01)
	assert.InDelta(t, 50, target["MSFT"], 0.01)
}

func TestSuggestRebalanceSkipsSmallDrift(t *testing.T) {
	current := map[string]float64{"AAPL": 52}
	target := map[string]float64{"AAPL": 50}
	positionValues := map[string]float64{"AAPL": 520}
	suggestions := suggestRebalance(current, positionValues, target, 1000)
	assert.Empty(t, suggestions)
}

func TestSuggestRebalanceFlagsLargeDrift(t *testing.T) {
	current := map[string]float64{"AAPL": 80}
	target := map[string]float64{"AAPL": 50}
	positionValues := map[string]float64{"AAPL": 800}
	suggestions := suggestRebalance(current, positionValues, target, 1000)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "sell", suggestions[0].Action)
}
