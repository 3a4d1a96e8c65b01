// Package scheduler implements the Scheduler (C9): cron-triggered
// workflow execution, activate/cancel/list jobs, and re-arming active
// schedules on process restart. Grounded on the teacher's
// automation.Service job lifecycle (CreateJob/SetEnabled/ListJobs) and
// schedule.go's hand-rolled cron evaluator — SPEC_FULL.md's domain
// stack section replaces that hand-rolled evaluator with
// robfig/cron/v3, a real cron-expression engine, rather than
// reimplementing minute-by-minute schedule search.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

// WorkflowLister is the subset of internal/store.WorkflowRepository
// the scheduler needs to re-arm active schedules on restart.
type WorkflowLister interface {
	ListActiveScheduled(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// RunFunc executes one scheduled firing of a workflow definition —
// supplied by the composition root, which closes over
// internal/workflow.Engine.Start and whatever initial
// agents.State construction a scheduled run needs.
type RunFunc func(ctx context.Context, wf *models.WorkflowDefinition)

// Scheduler owns a single robfig/cron/v3 clock and maps workflow ids
// to their cron entries so a later schedule change can replace or
// remove the right one.
type Scheduler struct {
	cron *cron.Cron
	list WorkflowLister
	run  RunFunc
	log  *logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	defs    map[string]*models.WorkflowDefinition
}

// New builds a Scheduler. Call Start to re-arm persisted schedules and
// begin firing.
func New(list WorkflowLister, run RunFunc, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("scheduler")
	}
	return &Scheduler{
		cron:    cron.New(),
		list:    list,
		run:     run,
		log:     log,
		entries: make(map[string]cron.EntryID),
		defs:    make(map[string]*models.WorkflowDefinition),
	}
}

// Start re-schedules every active, schedule-bearing workflow
// definition from the store (the restart-recovery spec.md section 4.9
// implies is necessary for a durable scheduler) and starts the cron
// clock.
func (s *Scheduler) Start(ctx context.Context) error {
	defs, err := s.list.ListActiveScheduled(ctx)
	if err != nil {
		return err
	}
	for _, wf := range defs {
		if wf.Schedule == nil || *wf.Schedule == "" {
			continue
		}
		if err := s.ScheduleWorkflow(wf); err != nil {
			s.log.WithError(err).WithField("workflow_id", wf.ID).Warn("failed to re-arm scheduled workflow")
		}
	}
	s.cron.Start()
	return nil
}

// Stop drains in-flight jobs (up to the caller's context deadline)
// before returning.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// ScheduleWorkflow arms (or re-arms, replacing any existing entry) a
// workflow definition's cron schedule.
func (s *Scheduler) ScheduleWorkflow(wf *models.WorkflowDefinition) error {
	if wf.Schedule == nil || *wf.Schedule == "" {
		return apperrors.InvalidInput("workflow has no schedule to arm")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[wf.ID]; ok {
		s.cron.Remove(existing)
	}

	entryID, err := s.cron.AddFunc(*wf.Schedule, func() {
		s.log.WithField("workflow_id", wf.ID).Info("scheduled workflow firing")
		s.run(context.Background(), wf)
	})
	if err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid cron schedule %q: %v", *wf.Schedule, err))
	}
	s.entries[wf.ID] = entryID
	s.defs[wf.ID] = wf
	return nil
}

// CancelWorkflow removes a workflow's schedule, reporting whether one
// was actually armed.
func (s *Scheduler) CancelWorkflow(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[workflowID]
	if !ok {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.entries, workflowID)
	delete(s.defs, workflowID)
	return true
}

// ListJobs returns the workflow ids currently armed.
func (s *Scheduler) ListJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}
