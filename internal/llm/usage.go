package llm

import (
	"context"
	"sync"

	"github.com/quantdesk/orchestrator/internal/domain"
)

// ModelUsage aggregates cost and token counts for one model.
type ModelUsage struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// TaskUsage aggregates cost and token counts for one task type.
type TaskUsage struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageStats is the aggregated view returned by the usage endpoint.
type UsageStats struct {
	TotalRequests         int                          `json:"total_requests"`
	TotalPromptTokens     int                           `json:"total_prompt_tokens"`
	TotalCompletionTokens int                           `json:"total_completion_tokens"`
	TotalCostUSD          float64                       `json:"total_cost_usd"`
	ByModel               map[string]ModelUsage          `json:"by_model"`
	ByTask                map[domain.LLMTask]TaskUsage   `json:"by_task"`
}

// UsageStore is an in-memory aggregating UsageRecorder, grounded on the
// reference usage tracker's daily/model/task rollups but kept process-local
// rather than persisted to a separate store: restart-durability of cost
// accounting is not a requirement here.
type UsageStore struct {
	mu      sync.Mutex
	records []domain.UsageRecord
	byModel map[string]ModelUsage
	byTask  map[domain.LLMTask]TaskUsage
}

// NewUsageStore builds an empty usage aggregator.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		byModel: make(map[string]ModelUsage),
		byTask:  make(map[domain.LLMTask]TaskUsage),
	}
}

// Record implements router.UsageRecorder.
func (s *UsageStore) Record(ctx context.Context, record domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)

	m := s.byModel[record.Model]
	m.Requests++
	m.PromptTokens += record.PromptTokens
	m.CompletionTokens += record.CompletionTokens
	m.CostUSD += record.CostUSD
	s.byModel[record.Model] = m

	t := s.byTask[record.Task]
	t.Requests++
	t.PromptTokens += record.PromptTokens
	t.CompletionTokens += record.CompletionTokens
	t.CostUSD += record.CostUSD
	s.byTask[record.Task] = t

	return nil
}

// Stats returns the current aggregated usage snapshot.
func (s *UsageStore) Stats() UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := UsageStats{
		ByModel: make(map[string]ModelUsage, len(s.byModel)),
		ByTask:  make(map[domain.LLMTask]TaskUsage, len(s.byTask)),
	}
	for model, usage := range s.byModel {
		stats.ByModel[model] = usage
		stats.TotalRequests += usage.Requests
		stats.TotalPromptTokens += usage.PromptTokens
		stats.TotalCompletionTokens += usage.CompletionTokens
		stats.TotalCostUSD += usage.CostUSD
	}
	for task, usage := range s.byTask {
		stats.ByTask[task] = usage
	}
	return stats
}
