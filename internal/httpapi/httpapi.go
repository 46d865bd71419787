// Package httpapi is the orchestrator's HTTP surface: analysis submission
// and status, workflow introspection, LLM routing, federated data fetch,
// and a liveness endpoint, fronted by the same chi middleware stack the
// reference server used.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/quantdesk/orchestrator/internal/balancer"
	"github.com/quantdesk/orchestrator/internal/cache"
	"github.com/quantdesk/orchestrator/internal/events"
	"github.com/quantdesk/orchestrator/internal/federation"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/quantdesk/orchestrator/internal/llm/router"
	"github.com/quantdesk/orchestrator/internal/memory"
	"github.com/quantdesk/orchestrator/internal/monitor"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/rs/zerolog"
)

// Config carries every dependency a handler needs. Nil fields are treated
// as "not wired" by handlers that can tolerate it (the data_sources and
// llm_providers sections of /health, for instance).
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	// RootCtx is the long-lived context the scheduler/monitor loops run
	// under; the scheduler lifecycle endpoints restart against it rather
	// than the cancel-on-response-finish request context.
	RootCtx context.Context

	Scheduler  *scheduler.Scheduler
	Monitor    *monitor.Monitor
	Balancer   *balancer.Balancer
	Bus        *events.Bus
	Router     *router.Router
	Usage      *llm.UsageStore
	Registry   *llm.Registry
	Federation *federation.Federation
	Cache      *cache.Cache
	Memory     *memory.Store
}

// Server is the orchestrator's chi-routed HTTP server.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New builds a Server with routes and middleware installed but not yet
// listening; call Start to bind the port.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "httpapi").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	analysisHandlers := &analysisHandlers{sched: s.cfg.Scheduler, log: s.log}
	rootCtx := s.cfg.RootCtx
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	workflowHandlers := &workflowHandlers{sched: s.cfg.Scheduler, mon: s.cfg.Monitor, bus: s.cfg.Bus, ctx: rootCtx, log: s.log}
	llmHandlers := &llmHandlers{router: s.cfg.Router, registry: s.cfg.Registry, usage: s.cfg.Usage, log: s.log}
	dataHandlers := &dataHandlers{federation: s.cfg.Federation, cache: s.cfg.Cache, log: s.log}

	s.router.Route("/analysis", func(r chi.Router) {
		r.Post("/submit", analysisHandlers.submit)
		r.Get("/status/{id}", analysisHandlers.status)
		r.Delete("/cancel/{id}", analysisHandlers.cancel)
	})

	s.router.Route("/workflow", func(r chi.Router) {
		r.Get("/tasks", workflowHandlers.tasks)
		r.Get("/metrics/scheduler", workflowHandlers.schedulerMetrics)
		r.Get("/metrics/system", workflowHandlers.systemMetrics)
		r.Get("/metrics/performance", workflowHandlers.performanceMetrics)
		r.Get("/alerts", workflowHandlers.alerts)
		r.Post("/scheduler/start", workflowHandlers.schedulerStart)
		r.Post("/scheduler/stop", workflowHandlers.schedulerStop)
		r.Get("/events/stream", workflowHandlers.eventsStream)
		r.Get("/events/socket", workflowHandlers.eventsSocket)
	})

	s.router.Route("/llm", func(r chi.Router) {
		r.Get("/models", llmHandlers.models)
		r.Post("/chat/completions", llmHandlers.chatCompletions)
		r.Get("/usage/stats", llmHandlers.usageStats)
	})

	s.router.Get("/data/{category}", dataHandlers.fetch)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.cfg.Federation != nil {
		status["data_sources"] = s.cfg.Federation.Health()
	}
	if s.cfg.Registry != nil {
		status["llm_providers"] = s.cfg.Registry.Health()
	}
	writeJSON(w, http.StatusOK, status)
}

// Start begins serving HTTP traffic; it blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
