package router

import (
	"context"
	"errors"
	"testing"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	models  []string
	healthy bool
	err     error
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return f.models }
func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Model: req.Model, Content: "ok", PromptTokens: 10, CompletionTokens: 20}, nil
}
func (f *fakeProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}
func (f *fakeProvider) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: f.healthy}
}

type fakeRecorder struct {
	records []domain.UsageRecord
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, record domain.UsageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func newTestRouter(recorder UsageRecorder) (*Router, *llm.Registry) {
	registry := llm.NewRegistry()
	registry.Register(&fakeProvider{name: "openai", models: []string{"gpt-4", "gpt-3.5-turbo"}, healthy: true})
	registry.Register(&fakeProvider{name: "deepseek", models: []string{"deepseek-chat"}, healthy: true})
	registry.RefreshHealth(context.Background())
	return New(registry, llm.DefaultPricing(), recorder, zerolog.Nop()), registry
}

func TestSelectPicksPrimaryCandidate(t *testing.T) {
	r, _ := newTestRouter(nil)
	provider, model, err := r.Select(domain.TaskAnalysis, "auto")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", provider)
	assert.Equal(t, "deepseek-chat", model)
}

func TestSelectHonorsExplicitPreference(t *testing.T) {
	r, _ := newTestRouter(nil)
	provider, model, err := r.Select(domain.TaskAnalysis, "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4", model)
}

func TestSelectFallsBackWhenPrimaryProviderUnhealthy(t *testing.T) {
	registry := llm.NewRegistry()
	registry.Register(&fakeProvider{name: "deepseek", models: []string{"deepseek-chat"}, healthy: false})
	registry.Register(&fakeProvider{name: "openai", models: []string{"gpt-4"}, healthy: true})
	registry.RefreshHealth(context.Background())
	r := New(registry, llm.DefaultPricing(), nil, zerolog.Nop())

	provider, model, err := r.Select(domain.TaskAnalysis, "auto")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4", model)
}

func TestSelectReturnsErrorWhenNothingHealthy(t *testing.T) {
	registry := llm.NewRegistry()
	registry.Register(&fakeProvider{name: "openai", models: []string{"gpt-4"}, healthy: false})
	registry.RefreshHealth(context.Background())
	r := New(registry, llm.DefaultPricing(), nil, zerolog.Nop())

	_, _, err := r.Select(domain.TaskAnalysis, "auto")
	assert.Error(t, err)
}

func TestCompleteRecordsUsage(t *testing.T) {
	recorder := &fakeRecorder{}
	r, _ := newTestRouter(recorder)

	resp, err := r.Complete(context.Background(), domain.TaskAnalysis, "auto", llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "analyze AAPL"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "deepseek-chat", recorder.records[0].Model)
	assert.Equal(t, 10, recorder.records[0].PromptTokens)
}

func TestCompleteSurvivesRecorderFailure(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	r, _ := newTestRouter(recorder)

	resp, err := r.Complete(context.Background(), domain.TaskAnalysis, "auto", llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "analyze AAPL"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestRecommendationsListsCandidatesWithHealth(t *testing.T) {
	r, _ := newTestRouter(nil)
	recs := r.Recommendations(domain.TaskDebate)
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.NotEmpty(t, rec.Model)
		assert.NotEmpty(t, rec.Provider)
	}
}
