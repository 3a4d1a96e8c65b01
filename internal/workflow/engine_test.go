package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockassistant/orchestrator/internal/agents"
	"github.com/stockassistant/orchestrator/internal/models"
)

type fakeExecutionStore struct {
	mu       sync.Mutex
	saved    []models.WorkflowExecution
	terminal chan struct{}
	closed   bool
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{terminal: make(chan struct{})}
}

func (s *fakeExecutionStore) Upsert(ctx context.Context, e *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *e)
	if !s.closed && (e.Status == models.StatusCompleted || e.Status == models.StatusFailed || e.Status == models.StatusCancelled) {
		s.closed = true
		close(s.terminal)
	}
	return nil
}

func (s *fakeExecutionStore) waitTerminal(t *testing.T) models.WorkflowExecution {
	t.Helper()
	select {
	case <-s.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not reach a terminal state in time")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

func (s *fakeExecutionStore) progressSequence() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.saved))
	for i, e := range s.saved {
		out[i] = e.Progress
	}
	return out
}

func namespacedAgent(key string) agents.Func {
	return func(ctx context.Context, state agents.State) agents.State {
		if state.Results == nil {
			state.Results = map[string]any{}
		}
		state.Results[key] = true
		return state
	}
}

func TestSequentialExecutionProgressIsMonotonic(t *testing.T) {
	registry := agents.NewRegistry()
	registry.Register("a", namespacedAgent("a"))
	registry.Register("b", namespacedAgent("b"))

	def := Definition{
		Nodes: []Node{
			{ID: "n1", Type: NodeAgent, Agent: "a", IsEntry: true},
			{ID: "n2", Type: NodeAgent, Agent: "b", IsFinish: true},
		},
		Edges: []Edge{{From: "n1", To: "n2"}},
	}

	store := newFakeExecutionStore()
	engine := NewEngine(registry, store, nil)
	_, err := engine.Start("wf1", def, models.ExecutionSequential, agents.State{Context: map[string]any{}}, 0)
	require.NoError(t, err)

	final := store.waitTerminal(t)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	progress := store.progressSequence()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestSequentialExecutionFailsWhenAgentAppendsError(t *testing.T) {
	registry := agents.NewRegistry()
	registry.Register("bad", func(ctx context.Context, state agents.State) agents.State {
		state.Errors = append(state.Errors, "boom")
		return state
	})
	def := Definition{Nodes: []Node{{ID: "n1", Type: NodeAgent, Agent: "bad", IsEntry: true, IsFinish: true}}}

	store := newFakeExecutionStore()
	engine := NewEngine(registry, store, nil)
	_, err := engine.Start("wf1", def, models.ExecutionSequential, agents.State{}, 0)
	require.NoError(t, err)

	final := store.waitTerminal(t)
	assert.Equal(t, models.StatusFailed, final.Status)
}

func TestParallelExecutionMergesNamespacedResultsWithoutClobbering(t *testing.T) {
	registry := agents.NewRegistry()
	registry.Register("price_alert", namespacedAgent("price_alert"))
	registry.Register("research", namespacedAgent("research"))
	registry.Register("rebalancing", namespacedAgent("rebalancing"))

	def := Templates["parallel_monitoring"].Definition
	store := newFakeExecutionStore()
	engine := NewEngine(registry, store, nil)
	_, err := engine.Start("wf1", def, models.ExecutionParallel, agents.State{Context: map[string]any{}}, 0)
	require.NoError(t, err)

	final := store.waitTerminal(t)
	assert.Equal(t, models.StatusCompleted, final.Status)
}

func TestCancelStopsARunningSequentialExecution(t *testing.T) {
	blockUntilCancelled := make(chan struct{})
	registry := agents.NewRegistry()
	registry.Register("slow", func(ctx context.Context, state agents.State) agents.State {
		close(blockUntilCancelled)
		<-ctx.Done()
		return state
	})
	registry.Register("after", namespacedAgent("after"))

	def := Definition{
		Nodes: []Node{
			{ID: "n1", Type: NodeAgent, Agent: "slow", IsEntry: true},
			{ID: "n2", Type: NodeAgent, Agent: "after", IsFinish: true},
		},
		Edges: []Edge{{From: "n1", To: "n2"}},
	}

	store := newFakeExecutionStore()
	engine := NewEngine(registry, store, nil)
	exec, err := engine.Start("wf1", def, models.ExecutionSequential, agents.State{}, 0)
	require.NoError(t, err)

	<-blockUntilCancelled
	ok := engine.Cancel(exec.ID)
	assert.True(t, ok)

	final := store.waitTerminal(t)
	assert.Equal(t, models.StatusCancelled, final.Status)
	assert.NotEqual(t, 100, final.Progress, "a cancelled execution must not report progress=100")
}
