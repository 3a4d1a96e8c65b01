package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/agents"
	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

// cancelGraceDeadline is how long a cancelled execution waits for
// in-flight nodes before giving up, per spec.md section 4.8's
// cancellation semantics.
const cancelGraceDeadline = 10 * time.Second

// ExecutionStore is the persistence surface the engine needs, narrow
// enough to unit test against an in-memory fake.
type ExecutionStore interface {
	Upsert(ctx context.Context, exec *models.WorkflowExecution) error
}

// AgentResolver looks up a registered agent by name — satisfied by
// *agents.Registry.
type AgentResolver interface {
	Get(name string) (agents.Func, bool)
}

// Engine runs workflow definitions against the Agent Registry (C7),
// tracking progress and persisting execution state as it goes.
type Engine struct {
	agents AgentResolver
	execs  ExecutionStore
	log    *logging.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine builds an Engine.
func NewEngine(registry AgentResolver, execs ExecutionStore, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewDefault("workflow")
	}
	return &Engine{agents: registry, execs: execs, log: log, cancels: make(map[string]context.CancelFunc)}
}

// Start validates def, writes the initial execution row
// (status=running, progress=0 — spec.md section 4.8's persistence
// contract), and runs the definition in the background. timeout <= 0
// means unbounded (spec.md's default).
func (e *Engine) Start(workflowID string, def Definition, mode models.ExecutionMode, initial agents.State, timeout time.Duration) (*models.WorkflowExecution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exec := &models.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     models.StatusRunning,
		Progress:   0,
		StartedAt:  &now,
		CreatedAt:  now,
	}
	if err := e.execs.Upsert(context.Background(), exec); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	}
	e.mu.Lock()
	e.cancels[exec.ID] = cancel
	e.mu.Unlock()

	go e.run(runCtx, exec, def, mode, initial)
	return exec, nil
}

// Cancel requests a running execution stop launching new nodes. It
// returns false if the execution isn't currently tracked as running.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (e *Engine) run(ctx context.Context, exec *models.WorkflowExecution, def Definition, mode models.ExecutionMode, initial agents.State) {
	defer func() {
		e.mu.Lock()
		delete(e.cancels, exec.ID)
		e.mu.Unlock()
	}()

	start := time.Now()
	var final agents.State
	var err error
	switch mode {
	case models.ExecutionParallel:
		final, err = e.runParallel(ctx, def, initial, exec)
	default:
		final, err = e.runSequential(ctx, def, initial, exec)
	}

	completedAt := time.Now().UTC()
	elapsedMS := int(time.Since(start).Milliseconds())
	exec.CompletedAt = &completedAt
	exec.ExecutionTime = &elapsedMS

	switch {
	case err != nil && apperrors.As(err).Code == apperrors.CodeWorkflowCancelled:
		exec.Status = models.StatusCancelled
	case err != nil:
		exec.Status = models.StatusFailed
		final.Errors = append(final.Errors, err.Error())
	case len(final.Errors) > 0:
		exec.Status = models.StatusFailed
	default:
		exec.Status = models.StatusCompleted
		exec.Progress = 100
	}

	if results, marshalErr := json.Marshal(final.Results); marshalErr == nil {
		exec.Results = results
	}
	if errs, marshalErr := json.Marshal(final.Errors); marshalErr == nil {
		exec.Errors = errs
	}

	if err := e.execs.Upsert(context.Background(), exec); err != nil {
		e.log.WithError(err).WithField("execution_id", exec.ID).Warn("failed to persist final execution state")
	}
	e.log.WithField("execution_id", exec.ID).WithField("status", exec.Status).Info("workflow execution finished")
}

// runSequential walks a topological order, threading each node's
// output state into the next node's input — spec.md section 4.8: an
// agent appending to Errors does not abort the run, but the final
// status is failed if any errors accumulated.
func (e *Engine) runSequential(ctx context.Context, def Definition, initial agents.State, exec *models.WorkflowExecution) (agents.State, error) {
	order, err := topoOrder(def)
	if err != nil {
		return initial, err
	}
	byID := make(map[string]Node, len(def.Nodes))
	for _, n := range def.Nodes {
		byID[n.ID] = n
	}

	current := initial
	total := len(order)
	for i, id := range order {
		select {
		case <-ctx.Done():
			return current, apperrors.WorkflowCancelled()
		default:
		}

		node := byID[id]
		if node.Type == NodeCondition {
			continue
		}
		fn, ok := e.agents.Get(node.Agent)
		if !ok {
			current.Errors = append(current.Errors, "no agent registered for node "+node.ID)
			continue
		}
		current = fn(ctx, current)

		progress := ((i + 1) * 100) / total
		exec.Progress = progress
		exec.CurrentNode = &node.ID
		if err := e.execs.Upsert(ctx, exec); err != nil {
			e.log.WithError(err).WithField("execution_id", exec.ID).Warn("failed to persist progress")
		}
	}
	return current, nil
}

// runParallel runs every non-entry/non-finish agent node concurrently
// against its own clone of the initial state, merges results by
// namespaced key (agents already write under their own name, so the
// merge is conflict-free by construction), and feeds the merged state
// to the finish node.
func (e *Engine) runParallel(ctx context.Context, def Definition, initial agents.State, exec *models.WorkflowExecution) (agents.State, error) {
	var branchNodes []Node
	var finish *Node
	for i, n := range def.Nodes {
		switch {
		case n.IsFinish:
			finish = &def.Nodes[i]
		case n.IsEntry:
			// entry is a structural marker only; no agent to run.
		case n.Type == NodeAgent:
			branchNodes = append(branchNodes, n)
		}
	}

	select {
	case <-ctx.Done():
		return initial, apperrors.WorkflowCancelled()
	default:
	}

	branchStates := make([]agents.State, len(branchNodes))
	var wg sync.WaitGroup
	for i, node := range branchNodes {
		wg.Add(1)
		go func(i int, node Node) {
			defer wg.Done()
			fn, ok := e.agents.Get(node.Agent)
			if !ok {
				branch := initial.Clone()
				branch.Errors = append(branch.Errors, "no agent registered for node "+node.ID)
				branchStates[i] = branch
				return
			}
			branchStates[i] = fn(ctx, initial.Clone())
		}(i, node)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(cancelGraceDeadline):
		}
		return mergeStates(initial, branchStates), apperrors.WorkflowCancelled()
	}

	merged := mergeStates(initial, branchStates)
	exec.Progress = 90
	if err := e.execs.Upsert(ctx, exec); err != nil {
		e.log.WithError(err).WithField("execution_id", exec.ID).Warn("failed to persist progress")
	}

	if finish != nil && finish.Type == NodeAgent {
		if fn, ok := e.agents.Get(finish.Agent); ok {
			merged = fn(ctx, merged)
		}
	}
	return merged, nil
}

// mergeStates deep-unions every branch's Results map into one, keyed
// by whatever namespace each agent wrote under (e.g. "price_alert",
// "research") so no branch can clobber another's key, and
// concatenates every branch's Errors.
func mergeStates(initial agents.State, branches []agents.State) agents.State {
	merged := initial.Clone()
	for _, b := range branches {
		if b.Results == nil {
			continue
		}
		if merged.Results == nil {
			merged.Results = map[string]any{}
		}
		for k, v := range b.Results {
			merged.Results[k] = v
		}
		merged.Errors = append(merged.Errors, b.Errors...)
	}
	return merged
}
