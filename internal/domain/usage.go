package domain

import "time"

// LLMTask identifies what kind of completion is being requested, used to
// pick the candidate model list in the router's task/model mapping.
type LLMTask string

const (
	TaskQuickThinking  LLMTask = "quick_thinking"
	TaskDeepThinking   LLMTask = "deep_thinking"
	TaskAnalysis       LLMTask = "analysis"
	TaskDebate         LLMTask = "debate"
	TaskRiskAssessment LLMTask = "risk_assessment"
	TaskSummarization  LLMTask = "summarization"
	TaskTranslation    LLMTask = "translation"
	TaskEmbedding      LLMTask = "embedding"
)

// UsageRecord tracks the cost and token accounting for one completion call.
type UsageRecord struct {
	RequestID        string    `json:"request_id"`
	Task             LLMTask   `json:"task"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMS        int64     `json:"latency_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// TotalTokens is the sum of prompt and completion tokens.
func (u *UsageRecord) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}
