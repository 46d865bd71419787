package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/balancer"
	"github.com/quantdesk/orchestrator/internal/cache"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/events"
	"github.com/quantdesk/orchestrator/internal/federation"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/quantdesk/orchestrator/internal/llm/router"
	orchtesting "github.com/quantdesk/orchestrator/internal/testing"
	"github.com/quantdesk/orchestrator/internal/monitor"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) Name() string     { return "stub" }
func (stubProvider) Models() []string { return []string{"gpt-3.5-turbo"} }
func (stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Model: req.Model, Content: "ok", PromptTokens: 3, CompletionTokens: 4}, nil
}
func (stubProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}
func (stubProvider) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: true}
}

type stubAdapter struct{ tag domain.SourceTag }

func (a stubAdapter) Tag() domain.SourceTag { return a.tag }
func (a stubAdapter) Fetch(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
	return &domain.DataRecord{Symbol: symbol, Category: category, Source: string(a.tag), FetchedAt: time.Now()}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	sched := scheduler.New(2, zerolog.Nop())
	sched.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{"symbol": task.Symbol}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sched.Start(ctx)
	t.Cleanup(sched.Stop)

	mon := monitor.New(sched, monitor.DefaultThresholds(), zerolog.Nop())

	registry := llm.NewRegistry()
	registry.Register(stubProvider{})
	registry.RefreshHealth(context.Background())
	usage := llm.NewUsageStore()
	rt := router.New(registry, llm.DefaultPricing(), usage, zerolog.Nop())

	priorityPath := filepath.Join(t.TempDir(), "priority_profiles.json")
	manager, err := federation.NewPriorityManager(priorityPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, manager.SetPriorityForCategory(domain.MarketUS, domain.CategoryPrice, []domain.SourceTag{domain.SourceAlphaVantage}))
	fed := federation.New(manager, zerolog.Nop())
	fed.RegisterAdapter(stubAdapter{tag: domain.SourceAlphaVantage}, 0)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db, cleanup := orchtesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	c := cache.New(cache.NewHot(redisClient), cache.NewDurable(db.Conn()), zerolog.Nop())

	return New(Config{
		Port:       0,
		Log:        zerolog.Nop(),
		RootCtx:    ctx,
		Scheduler:  sched,
		Monitor:    mon,
		Balancer:   balancer.New(balancer.StrategyRoundRobin, zerolog.Nop()),
		Bus:        events.NewBus(),
		Router:     rt,
		Usage:      usage,
		Registry:   registry,
		Federation: fed,
		Cache:      c,
	})
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitAnalysisThenFetchStatus(t *testing.T) {
	s := newTestServer(t)

	body := `{"symbol":"AAPL","market":"us_stock"}`
	req := httptest.NewRequest(http.MethodPost, "/analysis/submit?priority=high", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	taskID, ok := submitResp["task_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/analysis/status/"+taskID, nil)
		s.router.ServeHTTP(rec, req)
		return rec.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitAnalysisRejectsMissingSymbol(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/analysis/submit", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelUnknownTaskReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/analysis/cancel/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowTasksFiltersBySymbol(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/analysis/submit", strings.NewReader(fmt.Sprintf(`{"symbol":"SYM%d"}`, i)))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/workflow/tasks?symbol=SYM0", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []domain.WorkflowTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	for _, task := range tasks {
		assert.Equal(t, "SYM0", task.Symbol)
	}
}

func TestLLMModelsListsRegisteredProvider(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/llm/models", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stub")
}

func TestChatCompletionsRoutesToRegisteredProvider(t *testing.T) {
	s := newTestServer(t)
	body := `{"messages":[{"role":"user","content":"hi"}],"task_type":"quick_thinking"}`
	req := httptest.NewRequest(http.MethodPost, "/llm/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"content\":\"ok\"")
}

func TestUsageStatsReflectsCompletedCall(t *testing.T) {
	s := newTestServer(t)
	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/llm/chat/completions", strings.NewReader(body))
	s.router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/llm/usage/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats llm.UsageStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalRequests)
}

func TestDataFetchReturnsFederatedRecord(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/data/price?symbol=AAPL&market=us_stock", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var record domain.DataRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "AAPL", record.Symbol)
}

func TestDataFetchRequiresSymbol(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/data/price", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorMapsApierrKindsToStatusCodes(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apierr.RateLimit("too many"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
