// Router assembles every handler group behind gorilla/mux, grounded on
// the teacher's cmd/gateway/main.go's registerRoutes shape (health
// check, then a versioned API subrouter split into public/protected
// groups by middleware). This is the composition root's single entry
// point into internal/httpapi — cmd/server never touches mux directly.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockassistant/orchestrator/internal/logging"
)

// Deps bundles every collaborator the HTTP surface needs. Each field is
// the narrow interface defined alongside its handler group so Router
// can be exercised against fakes in tests without a live database,
// Redis, or tool server.
type Deps struct {
	Auth          Authenticator
	Workflows     WorkflowStore
	Executions    ExecutionStore
	Engine        Engine
	Scheduler     JobScheduler
	Hub           Connector
	Logger        *logging.Logger
	CORSOrigins   []string
	RateLimit     float64 // requests/sec per caller; 0 disables rate limiting
	RateLimitBurst float64
}

// NewRouter wires spec.md section 6's full HTTP + WebSocket surface:
// /auth/*, /workflows*, /executions/{id}, and /ws.
func NewRouter(deps Deps) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware(deps.CORSOrigins))
	r.Use(correlationMiddleware)
	r.Use(recoveryMiddleware(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var limiter func(http.Handler) http.Handler
	if deps.RateLimit > 0 {
		burst := deps.RateLimitBurst
		if burst <= 0 {
			burst = deps.RateLimit
		}
		limiter = rateLimitMiddleware(newTokenBucket(burst, deps.RateLimit))
	}

	api := r.PathPrefix("").Subrouter()
	if limiter != nil {
		api.Use(limiter)
	}

	auth := &authAPI{auth: deps.Auth}
	api.HandleFunc("/auth/register", auth.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", auth.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", auth.refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", auth.logout).Methods(http.MethodPost)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(authMiddleware(deps.Auth))
	protected.HandleFunc("/auth/me", auth.me).Methods(http.MethodGet)

	wf := &workflowAPI{
		workflows:  deps.Workflows,
		executions: deps.Executions,
		engine:     deps.Engine,
		scheduler:  deps.Scheduler,
	}
	protected.HandleFunc("/workflows", wf.create).Methods(http.MethodPost)
	protected.HandleFunc("/workflows", wf.list).Methods(http.MethodGet)
	protected.HandleFunc("/workflows/{id}/execute", wf.execute).Methods(http.MethodPost)
	protected.HandleFunc("/workflows/{id}/schedule", wf.setSchedule).Methods(http.MethodPost)
	protected.HandleFunc("/workflows/{id}/schedule", wf.deleteSchedule).Methods(http.MethodDelete)
	protected.HandleFunc("/executions/{id}", wf.getExecution).Methods(http.MethodGet)

	if deps.Hub != nil {
		ws := newWSAPI(deps.Auth, deps.Hub, log)
		r.HandleFunc("/ws", ws.serve)
	}

	return r
}

// NewServer wraps router in an *http.Server with the timeouts the
// teacher's gateway applies (cmd/gateway/main.go), sized for a
// WebSocket-carrying listener rather than a pure REST one.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
