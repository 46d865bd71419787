// Package di wires every component of the orchestrator together in
// dependency order: databases, cache, data federation, LLM routing,
// memory, the agent invoker, the analysis graph, the task scheduler,
// execution monitoring, load balancing, the concurrency pool, the event
// bus, and finally the HTTP API that fronts all of it.
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/quantdesk/orchestrator/internal/agent"
	"github.com/quantdesk/orchestrator/internal/balancer"
	"github.com/quantdesk/orchestrator/internal/cache"
	"github.com/quantdesk/orchestrator/internal/concurrency"
	"github.com/quantdesk/orchestrator/internal/config"
	"github.com/quantdesk/orchestrator/internal/database"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/events"
	"github.com/quantdesk/orchestrator/internal/federation"
	"github.com/quantdesk/orchestrator/internal/graph"
	"github.com/quantdesk/orchestrator/internal/httpapi"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/quantdesk/orchestrator/internal/llm/router"
	"github.com/quantdesk/orchestrator/internal/memory"
	"github.com/quantdesk/orchestrator/internal/monitor"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// allNodes lists the graph's handler-bearing nodes, used to register the
// agent invoker against every one at wiring time.
var allNodes = []domain.NodeID{
	domain.NodeMarketAnalyst,
	domain.NodeFundamentalsAnalyst,
	domain.NodeNewsAnalyst,
	domain.NodeSocialAnalyst,
	domain.NodeBullResearcher,
	domain.NodeBearResearcher,
	domain.NodeResearchManager,
	domain.NodeTrader,
	domain.NodeRiskyDebator,
	domain.NodeSafeDebator,
	domain.NodeNeutralDebator,
	domain.NodeRiskManager,
}

// Container holds every wired component so main can start/stop them in
// order without reaching back into config.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	OrchestratorDB *database.DB
	CacheDB        *database.DB
	Redis          *redis.Client

	Cache      *cache.Cache
	Federation *federation.Federation
	Priority   *federation.PriorityManager

	LLMRegistry *llm.Registry
	Pricing     *llm.PricingTable
	Usage       *llm.UsageStore
	Router      *router.Router

	Memory  *memory.Store
	Invoker *agent.Invoker
	Engine  *graph.Engine

	Scheduler *scheduler.Scheduler
	Monitor   *monitor.Monitor
	Balancer  *balancer.Balancer
	Pool      *concurrency.Pool
	Bus       *events.Bus
	Cron      *cron.Cron

	HTTP *httpapi.Server
}

// Wire builds the full dependency graph. Callers are responsible for
// calling Start and, on shutdown, Stop.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	orchestratorDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "orchestrator.db"),
		Profile: database.ProfileStandard,
		Name:    "orchestrator",
	})
	if err != nil {
		return nil, fmt.Errorf("open orchestrator database: %w", err)
	}
	if err := orchestratorDB.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate orchestrator database: %w", err)
	}
	c.OrchestratorDB = orchestratorDB

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}
	c.CacheDB = cacheDB

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	c.Cache = cache.New(cache.NewHot(c.Redis), cache.NewDurable(cacheDB.Conn()), log)

	priority, err := federation.NewPriorityManager(cfg.PriorityProfilePath, log)
	if err != nil {
		return nil, fmt.Errorf("load priority profiles: %w", err)
	}
	c.Priority = priority
	c.Federation = federation.BuildDefaultFederation(priority, federation.RegistryConfig{
		TushareToken:    cfg.Federation.TushareToken,
		AlphaVantageKey: cfg.Federation.AlphaVantageKey,
		TwelveDataKey:   cfg.Federation.TwelveDataKey,
		IEXCloudToken:   cfg.Federation.IEXCloudToken,
		FinnhubKey:      cfg.Federation.FinnhubKey,
	}, log)

	c.LLMRegistry = llm.NewRegistry()
	if cfg.LLM.OpenAIAPIKey != "" {
		c.LLMRegistry.Register(llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, nil))
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		c.LLMRegistry.Register(llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, nil))
	}
	c.LLMRegistry.RefreshHealth(ctx)

	c.Pricing = llm.DefaultPricing()
	c.Usage = llm.NewUsageStore()
	c.Router = router.New(c.LLMRegistry, c.Pricing, c.Usage, log)

	memStore, err := memory.New(ctx, memory.NewLocalBackend())
	if err != nil {
		return nil, fmt.Errorf("provision memory store: %w", err)
	}
	c.Memory = memStore
	c.Invoker = agent.New(c.Router, c.Memory, log)

	c.Engine = graph.New(cfg.DefaultMaxDebateRounds, cfg.DefaultMaxRiskRounds, domain.AlwaysContinue, log)
	for _, node := range allNodes {
		c.Engine.RegisterNode(node, c.Invoker.HandlerFor(node))
	}

	c.Bus = events.NewBus()

	c.Scheduler = scheduler.New(cfg.MaxConcurrentTasks, log)
	c.Scheduler.RegisterExecutor(domain.TaskKindAnalysis, c.analysisExecutor())
	c.Scheduler.RegisterCallback(scheduler.EventTaskStarted, c.publishTaskEvent("running"))
	c.Scheduler.RegisterCallback(scheduler.EventTaskCompleted, c.publishTaskEvent("completed"))
	c.Scheduler.RegisterCallback(scheduler.EventTaskFailed, c.publishTaskEvent("failed"))
	c.Scheduler.RegisterCallback(scheduler.EventTaskTimeout, c.publishTaskEvent("timeout"))

	c.Monitor = monitor.New(c.Scheduler, monitor.DefaultThresholds(), log)
	c.Balancer = balancer.New(balancer.StrategyHealthAware, log)
	c.Pool = concurrency.New(cfg.MaxConcurrentPool, cfg.MaxQueueSize)

	c.Cron = cron.New()
	cleanup := cache.NewCleanupJob(cache.NewDurable(cacheDB.Conn()), log)
	if _, err := c.Cron.AddJob("@daily", cleanup); err != nil {
		return nil, fmt.Errorf("schedule cache cleanup job: %w", err)
	}
	exporter, err := cache.NewExporter(ctx, cfg.S3Bucket, cfg.S3Region, cache.NewDurable(cacheDB.Conn()), log)
	if err != nil {
		return nil, fmt.Errorf("build durable-tier exporter: %w", err)
	}
	if exporter != nil {
		if _, err := c.Cron.AddJob("@daily", exporter); err != nil {
			return nil, fmt.Errorf("schedule durable-tier export job: %w", err)
		}
	}

	c.HTTP = httpapi.New(httpapi.Config{
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		RootCtx:    ctx,
		Log:        log,
		Scheduler:  c.Scheduler,
		Monitor:    c.Monitor,
		Balancer:   c.Balancer,
		Bus:        c.Bus,
		Router:     c.Router,
		Usage:      c.Usage,
		Registry:   c.LLMRegistry,
		Federation: c.Federation,
		Cache:      c.Cache,
		Memory:     c.Memory,
	})

	return c, nil
}

// publishTaskEvent builds a scheduler.Callback that republishes the task
// transition on the event bus, so SSE subscribers see it without the
// scheduler knowing about HTTP at all.
func (c *Container) publishTaskEvent(status string) scheduler.Callback {
	return func(task *domain.WorkflowTask) {
		c.Bus.Publish(&events.TaskEventData{
			TaskID: task.ID,
			Symbol: task.Symbol,
			Status: status,
			Error:  task.Error,
		})
	}
}

// analysisExecutor adapts the graph engine into a scheduler.Executor: it
// builds the AnalysisState for the task's symbol and requested analysis
// kind, runs it to completion through graph.NodeTable, and folds the
// result into the plain map the scheduler persists.
func (c *Container) analysisExecutor() scheduler.Executor {
	return func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		market, _ := task.Metadata["market"].(string)
		if market == "" {
			market = string(domain.MarketUS)
		}

		kind, _ := task.Metadata["kind"].(string)
		if kind == "" {
			kind = string(domain.KindComprehensive)
		}

		state := &domain.AnalysisState{
			Symbol:            task.Symbol,
			Market:            domain.MarketType(market),
			Kind:              domain.AnalysisKind(kind),
			EnableDebate:      metadataBool(task.Metadata, "enable_debate", true),
			EnableRiskManager: metadataBool(task.Metadata, "enable_risk_manager", true),
			CurrentNode:       domain.NodeMarketAnalyst,
			Reports:           make(map[domain.NodeID]domain.Report),
			StartedAt:         time.Now(),
		}

		if err := c.Engine.Run(ctx, state); err != nil {
			return nil, err
		}

		for _, node := range state.CompletedSteps {
			c.Bus.Publish(&events.NodeEventData{Symbol: task.Symbol, Node: string(node)})
		}

		result := map[string]any{
			"symbol":   state.Symbol,
			"market":   state.Market,
			"reports":  state.Reports,
			"errors":   state.Errors,
			"messages": state.Messages,
		}

		if final := state.Reports[domain.NodeTrader].Final; final != nil {
			result["recommendation"] = final
			c.Bus.Publish(&events.AnalysisEventData{
				Symbol:     task.Symbol,
				Action:     final.Action,
				Confidence: final.Confidence,
			})
		}

		return result, nil
	}
}

// metadataBool reads a boolean option out of a task's metadata map,
// returning fallback when the key is absent or not a bool.
func metadataBool(metadata map[string]any, key string, fallback bool) bool {
	if v, ok := metadata[key].(bool); ok {
		return v
	}
	return fallback
}

// Start launches the scheduler, the execution monitor and the cron jobs,
// then runs the HTTP server. The balancer is given a nil health check, so
// no balancer health-check loop runs. Start blocks until the HTTP server
// stops and returns its error; Stop shuts everything down.
func (c *Container) Start(ctx context.Context) error {
	c.Scheduler.Start(ctx)
	c.Monitor.Start(ctx)
	c.Balancer.StartHealthChecks(ctx, nil)
	c.Cron.Start()
	return c.HTTP.Start()
}

// Stop tears down every background loop and closes database connections in
// reverse wiring order.
func (c *Container) Stop(ctx context.Context) {
	if err := c.HTTP.Shutdown(ctx); err != nil {
		c.Log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	<-c.Cron.Stop().Done()
	c.Balancer.StopHealthChecks()
	c.Monitor.Stop()
	c.Scheduler.Stop()

	if err := c.Redis.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("redis client close error")
	}
	if err := c.CacheDB.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("cache database close error")
	}
	if err := c.OrchestratorDB.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("orchestrator database close error")
	}
}
