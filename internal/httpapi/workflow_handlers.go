// Workflow handlers implement spec.md section 6's workflow HTTP
// surface: create (from a raw DAG or a named template), list, execute,
// inspect an execution, and arm/cancel a schedule. Grounded on the
// teacher's CRUD-handler shape (cmd/gateway's walletHandlers) adapted
// to workflow definitions, and on
// original_source/.../app/services/workflow_definitions.py's
// template-or-custom creation path (createFromTemplate vs a raw spec).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stockassistant/orchestrator/internal/agents"
	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/models"
	"github.com/stockassistant/orchestrator/internal/workflow"
)

// WorkflowStore is the subset of internal/store.WorkflowRepository the
// HTTP layer needs.
type WorkflowStore interface {
	Create(ctx context.Context, wf *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListForUser(ctx context.Context, userID string) ([]*models.WorkflowDefinition, error)
	SetSchedule(ctx context.Context, id string, schedule *string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ExecutionStore is the subset of internal/store.ExecutionRepository
// the HTTP layer needs.
type ExecutionStore interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListForWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error)
}

// Engine is the subset of internal/workflow.Engine the HTTP layer
// drives directly (ad hoc "execute now" requests; scheduled firings go
// through internal/scheduler instead).
type Engine interface {
	Start(workflowID string, def workflow.Definition, mode models.ExecutionMode, initial agents.State, timeout time.Duration) (*models.WorkflowExecution, error)
	Cancel(executionID string) bool
}

// JobScheduler is the subset of internal/scheduler.Scheduler the HTTP
// layer needs to arm/disarm a workflow's cron schedule in step with
// the stored definition.
type JobScheduler interface {
	ScheduleWorkflow(wf *models.WorkflowDefinition) error
	CancelWorkflow(workflowID string) bool
}

type workflowAPI struct {
	workflows  WorkflowStore
	executions ExecutionStore
	engine     Engine
	scheduler  JobScheduler
}

type createWorkflowRequest struct {
	Name          string               `json:"name"`
	Template      string               `json:"template,omitempty"`
	Definition    json.RawMessage      `json:"definition,omitempty"`
	ExecutionMode models.ExecutionMode `json:"execution_mode,omitempty"`
	Schedule      *string              `json:"schedule,omitempty"`
}

func (a *workflowAPI) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, apperrors.InvalidToken(nil))
		return
	}

	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, apperrors.InvalidInput("name is required"))
		return
	}

	var (
		defBytes []byte
		mode     = req.ExecutionMode
		schedule = req.Schedule
		workType = req.Template
	)

	if req.Template != "" {
		tmpl, ok := workflow.TemplateByName(req.Template)
		if !ok {
			writeError(w, r, apperrors.InvalidInput("unknown workflow template: "+req.Template))
			return
		}
		raw, err := json.Marshal(tmpl.Definition)
		if err != nil {
			writeError(w, r, apperrors.Internal(err))
			return
		}
		defBytes = raw
		mode = tmpl.ExecutionMode
		if schedule == nil {
			s := tmpl.DefaultSchedule
			schedule = &s
		}
	} else {
		if len(req.Definition) == 0 {
			writeError(w, r, apperrors.InvalidInput("definition is required when no template is given"))
			return
		}
		if mode != models.ExecutionSequential && mode != models.ExecutionParallel {
			writeError(w, r, apperrors.InvalidInput("execution_mode must be \"sequential\" or \"parallel\""))
			return
		}
		defBytes = req.Definition
		workType = "custom"
	}

	var def workflow.Definition
	if err := json.Unmarshal(defBytes, &def); err != nil {
		writeError(w, r, apperrors.InvalidInput("definition is not a valid workflow DAG"))
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, r, apperrors.InvalidInput(err.Error()))
		return
	}

	now := time.Now().UTC()
	wf := &models.WorkflowDefinition{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          req.Name,
		WorkflowType:  workType,
		Definition:    defBytes,
		ExecutionMode: mode,
		Schedule:      schedule,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.workflows.Create(r.Context(), wf); err != nil {
		writeError(w, r, err)
		return
	}
	if schedule != nil && *schedule != "" {
		if err := a.scheduler.ScheduleWorkflow(wf); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, wf)
}

func (a *workflowAPI) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, apperrors.InvalidToken(nil))
		return
	}
	workflows, err := a.workflows.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

// loadOwned fetches a workflow definition and checks it belongs to the
// authenticated caller, the access-control check every per-workflow
// route needs.
func (a *workflowAPI) loadOwned(r *http.Request) (*models.WorkflowDefinition, error) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		return nil, apperrors.InvalidToken(nil)
	}
	id := mux.Vars(r)["id"]
	wf, err := a.workflows.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if wf.UserID != userID {
		return nil, apperrors.Forbidden("you do not own this workflow")
	}
	return wf, nil
}

type executeRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

func (a *workflowAPI) execute(w http.ResponseWriter, r *http.Request) {
	wf, err := a.loadOwned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req executeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var def workflow.Definition
	if err := json.Unmarshal(wf.Definition, &def); err != nil {
		writeError(w, r, apperrors.Internal(err))
		return
	}

	initialContext := map[string]any{"user_id": wf.UserID}
	for k, v := range req.Context {
		initialContext[k] = v
	}

	exec, err := a.engine.Start(wf.ID, def, wf.ExecutionMode, agents.State{Context: initialContext}, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (a *workflowAPI) getExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := a.executions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	wf, err := a.workflows.GetByID(r.Context(), exec.WorkflowID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, _ := userIDFrom(r.Context())
	if wf.UserID != userID {
		writeError(w, r, apperrors.Forbidden("you do not own this execution"))
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

type scheduleRequest struct {
	Cron string `json:"cron"`
}

func (a *workflowAPI) setSchedule(w http.ResponseWriter, r *http.Request) {
	wf, err := a.loadOwned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Cron == "" {
		writeError(w, r, apperrors.InvalidInput("cron is required"))
		return
	}

	if err := a.workflows.SetSchedule(r.Context(), wf.ID, &req.Cron); err != nil {
		writeError(w, r, err)
		return
	}
	wf.Schedule = &req.Cron
	if err := a.scheduler.ScheduleWorkflow(wf); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (a *workflowAPI) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	wf, err := a.loadOwned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.workflows.SetSchedule(r.Context(), wf.ID, nil); err != nil {
		writeError(w, r, err)
		return
	}
	a.scheduler.CancelWorkflow(wf.ID)
	w.WriteHeader(http.StatusNoContent)
}
