// Command server is the orchestrator's composition root: it builds
// config, logging, the database pool, the Redis client, the cache, the
// circuit breaker registry, the remote tool client, auth, persistence,
// the alert evaluator, the agent registry, the workflow engine, the
// scheduler, the real-time hub, and the price ticker loop, wires them
// together, and serves HTTP/WebSocket traffic until a shutdown signal
// arrives. Grounded on the teacher's cmd/gateway/main.go overall shape
// (env/flag parsing, server construction, graceful shutdown on
// SIGINT/SIGTERM) with the marble/enclave/OAuth machinery specific to
// that project's own deployment target left out — spec.md's domain has
// no analog for it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/stockassistant/orchestrator/internal/agents"
	"github.com/stockassistant/orchestrator/internal/alerts"
	"github.com/stockassistant/orchestrator/internal/auth"
	"github.com/stockassistant/orchestrator/internal/cache"
	"github.com/stockassistant/orchestrator/internal/config"
	"github.com/stockassistant/orchestrator/internal/httpapi"
	"github.com/stockassistant/orchestrator/internal/hub"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/metrics"
	"github.com/stockassistant/orchestrator/internal/models"
	"github.com/stockassistant/orchestrator/internal/resilience"
	"github.com/stockassistant/orchestrator/internal/scheduler"
	"github.com/stockassistant/orchestrator/internal/store"
	"github.com/stockassistant/orchestrator/internal/ticker"
	"github.com/stockassistant/orchestrator/internal/toolclient"
	"github.com/stockassistant/orchestrator/internal/workflow"
)

// toolServerName keys the circuit breaker registry and retry profile
// for every call into the stock-data capability server, matching
// spec.md section 8 scenario 4's "stock-data circuit breaker".
const toolServerName = "stock-data"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.WithField("environment", string(cfg.Environment)).Info("starting orchestrator")

	db, err := store.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	defer db.Close()

	repos := store.NewRepositories(db)

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		redisOpts = &redis.Options{Addr: "localhost:6379"}
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	metricsRecorder := metrics.New(prometheus.DefaultRegisterer)

	memCache := cache.NewWithClient(rdb, cache.DefaultConfig(), logger).WithMetrics(metricsRecorder)
	defer memCache.Close()
	sessions := auth.NewSessionStore(rdb)

	tokens := auth.NewTokenManager(
		cfg.Auth.JWTSecretKey,
		time.Duration(cfg.Auth.AccessTokenExpireMins)*time.Minute,
		time.Duration(cfg.Auth.RefreshTokenExpireDay)*24*time.Hour,
	)
	hasher := auth.NewPasswordHasher(logger)
	authService := auth.NewService(
		repos.Users, tokens, sessions, hasher,
		time.Duration(cfg.Auth.RefreshTokenExpireDay)*24*time.Hour,
		logger,
	)

	breakers := resilience.NewRegistry().WithMetrics(metricsRecorder)
	breakers.Configure(toolServerName, resilience.DefaultBreakerConfig())

	mcpProfile := resilience.ProfileMCP
	mcpProfile.ProfileName = "mcp"
	mcpProfile.Metrics = metricsRecorder

	rawTools := toolclient.New(toolServerName, cfg.ToolServer.StockDataURL, logger)
	guardedTools := resilience.NewGuardedToolCaller(rawTools, breakers, mcpProfile)

	realtimeHub := hub.New(logger)

	evaluator := alerts.New(repos.Alerts, repos.Notifications, realtimeHub, logger)

	agentRegistry := agents.NewRegistry()
	agentRegistry.Register("price_alert", agents.NewPriceAlertAgent(repos.Alerts, guardedTools, evaluator))
	agentRegistry.Register("research", agents.NewResearchAgent(guardedTools, cache.NewSeenHeadlines(memCache, 24*time.Hour)))
	agentRegistry.Register("rebalancing", agents.NewRebalancingAgent(repos.Portfolios, guardedTools))

	engine := workflow.NewEngine(agentRegistry, repos.Executions, logger)

	sched := scheduler.New(repos.Workflows, func(ctx context.Context, wf *models.WorkflowDefinition) {
		var def workflow.Definition
		if err := json.Unmarshal(wf.Definition, &def); err != nil {
			logger.WithError(err).WithField("workflow_id", wf.ID).Error("scheduled workflow has an invalid definition")
			return
		}
		initial := agents.State{Context: map[string]any{"user_id": wf.UserID}}
		if _, err := engine.Start(wf.ID, def, wf.ExecutionMode, initial, 0); err != nil {
			logger.WithError(err).WithField("workflow_id", wf.ID).Error("scheduled workflow run failed to start")
		}
	}, logger)

	priceTicker := ticker.New(realtimeHub, guardedTools, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:           authService,
		Workflows:      repos.Workflows,
		Executions:     repos.Executions,
		Engine:         engine,
		Scheduler:      sched,
		Hub:            realtimeHub,
		Logger:         logger,
		CORSOrigins:    cfg.CORS.Origins,
		RateLimit:      20,
		RateLimitBurst: 40,
	})
	server := httpapi.NewServer(serverAddr(cfg), router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start scheduler")
	}
	go priceTicker.Run(ctx)

	go func() {
		logger.WithField("addr", server.Addr).Info("http/ws server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	priceTicker.Stop()
	sched.Stop(shutdownCtx)
}

func serverAddr(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return host + ":" + strconv.Itoa(port)
}
