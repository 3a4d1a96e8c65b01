package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockassistant/orchestrator/internal/agents"
	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/auth"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
	"github.com/stockassistant/orchestrator/internal/workflow"
)

// fakeUserRepo is the narrow UserRepository internal/auth.Service
// needs, an in-memory stand-in for internal/store in this router-level
// test (the same shape internal/auth's own tests use).
type fakeUserRepo struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]*models.User{}, byID: map[string]*models.User{}}
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperrors.UserNotFound()
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperrors.UserNotFound()
	}
	return u, nil
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *models.User) error {
	if _, exists := f.byEmail[user.Email]; exists {
		return apperrors.DuplicateEmail()
	}
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return nil
}

// fakeWorkflowStore is an in-memory WorkflowStore.
type fakeWorkflowStore struct {
	byID map[string]*models.WorkflowDefinition
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{byID: map[string]*models.WorkflowDefinition{}}
}

func (f *fakeWorkflowStore) Create(_ context.Context, wf *models.WorkflowDefinition) error {
	f.byID[wf.ID] = wf
	return nil
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	wf, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFound("workflow", id)
	}
	return wf, nil
}

func (f *fakeWorkflowStore) ListForUser(_ context.Context, userID string) ([]*models.WorkflowDefinition, error) {
	var out []*models.WorkflowDefinition
	for _, wf := range f.byID {
		if wf.UserID == userID {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (f *fakeWorkflowStore) SetSchedule(_ context.Context, id string, schedule *string) error {
	if wf, ok := f.byID[id]; ok {
		wf.Schedule = schedule
	}
	return nil
}

func (f *fakeWorkflowStore) SetActive(_ context.Context, id string, active bool) error {
	if wf, ok := f.byID[id]; ok {
		wf.IsActive = active
	}
	return nil
}

// fakeExecutionStore is an in-memory ExecutionStore.
type fakeExecutionStore struct {
	byID map[string]*models.WorkflowExecution
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{byID: map[string]*models.WorkflowExecution{}}
}

func (f *fakeExecutionStore) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFound("execution", id)
	}
	return e, nil
}

func (f *fakeExecutionStore) ListForWorkflow(_ context.Context, workflowID string, _ int) ([]*models.WorkflowExecution, error) {
	var out []*models.WorkflowExecution
	for _, e := range f.byID {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeEngine records Start calls and returns a canned completed execution,
// so the handler test doesn't need a real internal/workflow.Engine.
type fakeEngine struct {
	execs *fakeExecutionStore
}

func (f *fakeEngine) Start(workflowID string, _ workflow.Definition, _ models.ExecutionMode, _ agents.State, _ time.Duration) (*models.WorkflowExecution, error) {
	exec := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: workflowID,
		Status:     models.StatusCompleted,
		Progress:   100,
		CreatedAt:  time.Now().UTC(),
	}
	f.execs.byID[exec.ID] = exec
	return exec, nil
}

func (f *fakeEngine) Cancel(string) bool { return false }

type fakeScheduler struct{ scheduled map[string]bool }

func (f *fakeScheduler) ScheduleWorkflow(wf *models.WorkflowDefinition) error {
	f.scheduled[wf.ID] = true
	return nil
}

func (f *fakeScheduler) CancelWorkflow(workflowID string) bool {
	existed := f.scheduled[workflowID]
	delete(f.scheduled, workflowID)
	return existed
}

func newTestRouter(t *testing.T) (http.Handler, *fakeWorkflowStore, *fakeExecutionStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	users := newFakeUserRepo()
	tokens := auth.NewTokenManager("router-test-secret-32-bytes-min!!", 15*time.Minute, 7*24*time.Hour)
	sessions := auth.NewSessionStore(rdb)
	hasher := auth.NewPasswordHasher(logging.NewDefault("router-test"))
	authService := auth.NewService(users, tokens, sessions, hasher, 7*24*time.Hour, logging.NewDefault("router-test"))

	wfStore := newFakeWorkflowStore()
	execStore := newFakeExecutionStore()
	engine := &fakeEngine{execs: execStore}
	sched := &fakeScheduler{scheduled: map[string]bool{}}

	router := NewRouter(Deps{
		Auth:        authService,
		Workflows:   wfStore,
		Executions:  execStore,
		Engine:      engine,
		Scheduler:   sched,
		Logger:      logging.NewDefault("router-test"),
		CORSOrigins: []string{"*"},
	})
	return router, wfStore, execStore
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRegisterLoginMeRoundTrip(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "P@ssword1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var registered tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	assert.Equal(t, "alice@example.com", registered.User.Email)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", registered.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestAuthMeRejectsMissingToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkflowCreateExecuteAndFetchExecution(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "bob@example.com", "password": "P@ssword1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var registered tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	token := registered.AccessToken

	def := workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "start", Type: workflow.NodeAgent, Agent: "price_alert", IsEntry: true, IsFinish: true},
		},
	}
	defBytes, err := json.Marshal(def)
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPost, "/workflows", token, map[string]any{
		"name":           "watch-aapl",
		"definition":     json.RawMessage(defBytes),
		"execution_mode": "sequential",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, "watch-aapl", wf.Name)

	rec = doJSON(t, router, http.MethodPost, "/workflows/"+wf.ID+"/execute", token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var exec models.WorkflowExecution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.Equal(t, 100, exec.Progress)

	rec = doJSON(t, router, http.MethodGet, "/executions/"+exec.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWorkflowRoutesRequireOwnership(t *testing.T) {
	router, wfStore, _ := newTestRouter(t)

	other := &models.WorkflowDefinition{ID: "wf-other", UserID: "someone-else", Name: "x",
		ExecutionMode: models.ExecutionSequential, Definition: []byte(`{}`)}
	wfStore.byID[other.ID] = other

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "carol@example.com", "password": "P@ssword1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var registered tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))

	rec = doJSON(t, router, http.MethodPost, "/workflows/"+other.ID+"/execute", registered.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointIsUnauthenticatedAndServesPrometheusFormat(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
