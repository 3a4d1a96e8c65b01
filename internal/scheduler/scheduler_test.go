package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockassistant/orchestrator/internal/models"
)

type fakeWorkflowLister struct {
	active []*models.WorkflowDefinition
	err    error
}

func (f *fakeWorkflowLister) ListActiveScheduled(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return f.active, f.err
}

func schedulePtr(s string) *string { return &s }

func workflowDef(id, schedule string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{ID: id, Schedule: schedulePtr(schedule), IsActive: true}
}

type firingRecorder struct {
	mu      sync.Mutex
	fired   []string
	fireAll chan string
}

func newFiringRecorder() *firingRecorder {
	return &firingRecorder{fireAll: make(chan string, 32)}
}

func (r *firingRecorder) run(ctx context.Context, wf *models.WorkflowDefinition) {
	r.mu.Lock()
	r.fired = append(r.fired, wf.ID)
	r.mu.Unlock()
	r.fireAll <- wf.ID
}

func (r *firingRecorder) waitFire(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.fireAll:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("expected a scheduled firing but none happened")
		return ""
	}
}

func TestScheduleWorkflowRejectsMissingSchedule(t *testing.T) {
	s := New(&fakeWorkflowLister{}, func(context.Context, *models.WorkflowDefinition) {}, nil)
	err := s.ScheduleWorkflow(&models.WorkflowDefinition{ID: "wf1"})
	assert.Error(t, err)
}

func TestScheduleWorkflowRejectsInvalidCronExpression(t *testing.T) {
	s := New(&fakeWorkflowLister{}, func(context.Context, *models.WorkflowDefinition) {}, nil)
	err := s.ScheduleWorkflow(workflowDef("wf1", "not a cron expression"))
	assert.Error(t, err)
}

func TestScheduleWorkflowThenListThenCancel(t *testing.T) {
	recorder := newFiringRecorder()
	s := New(&fakeWorkflowLister{}, recorder.run, nil)

	require.NoError(t, s.ScheduleWorkflow(workflowDef("wf1", "@every 50ms")))
	assert.ElementsMatch(t, []string{"wf1"}, s.ListJobs())

	assert.True(t, s.CancelWorkflow("wf1"))
	assert.Empty(t, s.ListJobs())
	assert.False(t, s.CancelWorkflow("wf1"), "cancelling twice should report no job was armed")
}

func TestScheduleWorkflowReplacesExistingEntryForSameID(t *testing.T) {
	recorder := newFiringRecorder()
	s := New(&fakeWorkflowLister{}, recorder.run, nil)

	require.NoError(t, s.ScheduleWorkflow(workflowDef("wf1", "@every 1h")))
	require.NoError(t, s.ScheduleWorkflow(workflowDef("wf1", "@every 50ms")))
	assert.Len(t, s.ListJobs(), 1)

	s.cron.Start()
	defer s.Stop(context.Background())
	assert.Equal(t, "wf1", recorder.waitFire(t))
}

func TestStartReArmsActiveScheduledWorkflowsFromStore(t *testing.T) {
	recorder := newFiringRecorder()
	lister := &fakeWorkflowLister{active: []*models.WorkflowDefinition{
		workflowDef("wf1", "@every 50ms"),
		workflowDef("wf2", "@every 1h"),
	}}
	s := New(lister, recorder.run, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.ElementsMatch(t, []string{"wf1", "wf2"}, s.ListJobs())
	assert.Equal(t, "wf1", recorder.waitFire(t))
}

func TestStartSkipsWorkflowsWithoutASchedule(t *testing.T) {
	lister := &fakeWorkflowLister{active: []*models.WorkflowDefinition{
		{ID: "wf-no-schedule", IsActive: true},
	}}
	s := New(lister, func(context.Context, *models.WorkflowDefinition) {}, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	assert.Empty(t, s.ListJobs())
}
