// Package router picks which provider and model serve a given task,
// walking a primary/fallback candidate list by health before falling back
// to whatever provider is registered and reachable.
package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/rs/zerolog"
)

// candidates is the primary/fallback model list for one task type.
type candidates struct {
	Primary  []string
	Fallback []string
}

// taskModelMapping is the task type to candidate model mapping. Task types
// not present here fall back to "general".
var taskModelMapping = map[domain.LLMTask]candidates{
	domain.TaskAnalysis: {
		Primary:  []string{"deepseek-chat", "qwen-plus", "gpt-4", "gemini-pro"},
		Fallback: []string{"gpt-3.5-turbo", "qwen-turbo", "gemini-1.5-flash"},
	},
	domain.TaskDebate: {
		Primary:  []string{"gpt-4", "deepseek-chat", "qwen-plus"},
		Fallback: []string{"gemini-pro", "gpt-3.5-turbo"},
	},
	domain.TaskRiskAssessment: {
		Primary:  []string{"deepseek-chat", "gpt-4", "gemini-pro"},
		Fallback: []string{"qwen-plus", "gpt-3.5-turbo"},
	},
	domain.TaskQuickThinking: {
		Primary:  []string{"gpt-3.5-turbo", "qwen-turbo", "gemini-1.5-flash"},
		Fallback: []string{"deepseek-chat", "qwen-plus"},
	},
	domain.TaskDeepThinking: {
		Primary:  []string{"gpt-4", "claude-3-opus", "deepseek-chat"},
		Fallback: []string{"claude-3-sonnet", "qwen-plus"},
	},
	domain.TaskSummarization: {
		Primary:  []string{"qwen-plus", "deepseek-chat", "gpt-4"},
		Fallback: []string{"gemini-pro", "gpt-3.5-turbo"},
	},
	domain.TaskTranslation: {
		Primary:  []string{"qwen-plus", "deepseek-chat", "qwen-turbo"},
		Fallback: []string{"gpt-4", "gemini-pro"},
	},
	"general": {
		Primary:  []string{"deepseek-chat", "qwen-plus", "gpt-4", "gemini-pro"},
		Fallback: []string{"gpt-3.5-turbo", "qwen-turbo", "gemini-1.5-flash"},
	},
}

// UsageRecorder persists one completion call's cost and token accounting.
type UsageRecorder interface {
	Record(ctx context.Context, record domain.UsageRecord) error
}

// Router selects a provider/model for a task and records usage per call.
type Router struct {
	registry *llm.Registry
	pricing  *llm.PricingTable
	recorder UsageRecorder
	log      zerolog.Logger
}

// New builds a Router over a provider registry and pricing table.
func New(registry *llm.Registry, pricing *llm.PricingTable, recorder UsageRecorder, log zerolog.Logger) *Router {
	return &Router{registry: registry, pricing: pricing, recorder: recorder, log: log.With().Str("component", "llm_router").Logger()}
}

// Select walks the task's candidate list (primary, then fallback, then any
// registered model) and returns the first whose owning provider is healthy.
// An explicit modelPreference other than "auto" is tried first.
func (r *Router) Select(task domain.LLMTask, modelPreference string) (providerName, model string, err error) {
	if modelPreference != "" && modelPreference != "auto" {
		if p, ok := r.providerFor(modelPreference); ok && r.registry.IsHealthy(p) {
			return p, modelPreference, nil
		}
		r.log.Warn().Str("model", modelPreference).Msg("preferred model unhealthy or unknown, falling back to routing table")
	}

	mapping, ok := taskModelMapping[task]
	if !ok {
		mapping = taskModelMapping["general"]
	}

	for _, model := range append(append([]string{}, mapping.Primary...), mapping.Fallback...) {
		if p, ok := r.providerFor(model); ok && r.registry.IsHealthy(p) {
			return p, model, nil
		}
	}

	for _, name := range r.registry.List() {
		if r.registry.IsHealthy(name) {
			if models := r.modelsFor(name); len(models) > 0 {
				return name, models[0], nil
			}
		}
	}

	return "", "", apierr.Unavailable("no healthy provider available for task %s", task)
}

// Complete selects a provider/model for task, runs the completion, and
// records a domain.UsageRecord (best-effort; a recorder failure is logged,
// not returned, since it must never block the caller's analysis pipeline).
func (r *Router) Complete(ctx context.Context, task domain.LLMTask, modelPreference string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	providerName, model, err := r.Select(task, modelPreference)
	if err != nil {
		return nil, err
	}
	provider, ok := r.registry.Get(providerName)
	if !ok {
		return nil, apierr.Internal("router selected unregistered provider %s", providerName)
	}

	req.Model = model
	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, err
	}

	if r.recorder != nil {
		record := domain.UsageRecord{
			RequestID:        uuid.NewString(),
			Task:             task,
			Provider:         providerName,
			Model:            model,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			CostUSD:          r.pricing.Cost(model, resp.PromptTokens, resp.CompletionTokens),
			LatencyMS:        latency.Milliseconds(),
			Timestamp:        time.Now(),
		}
		if err := r.recorder.Record(ctx, record); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist usage record")
		}
	}

	return resp, nil
}

// Recommendations lists every candidate model for a task with its owning
// provider and current health, primary candidates first.
type Recommendation struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Priority string `json:"priority"` // primary or fallback
	Healthy  bool   `json:"healthy"`
}

func (r *Router) Recommendations(task domain.LLMTask) []Recommendation {
	mapping, ok := taskModelMapping[task]
	if !ok {
		mapping = taskModelMapping["general"]
	}

	var out []Recommendation
	add := func(models []string, priority string) {
		for _, model := range models {
			provider, ok := r.providerFor(model)
			if !ok {
				continue
			}
			out = append(out, Recommendation{Model: model, Provider: provider, Priority: priority, Healthy: r.registry.IsHealthy(provider)})
		}
	}
	add(mapping.Primary, "primary")
	add(mapping.Fallback, "fallback")
	return out
}

func (r *Router) providerFor(model string) (string, bool) {
	for _, name := range r.registry.List() {
		p, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		for _, m := range p.Models() {
			if m == model {
				return name, true
			}
		}
	}
	return "", false
}

func (r *Router) modelsFor(providerName string) []string {
	p, ok := r.registry.Get(providerName)
	if !ok {
		return nil
	}
	return p.Models()
}
