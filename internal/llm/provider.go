// Package llm defines the provider-agnostic chat completion contract and
// the concrete HTTP-backed connectors that implement it.
package llm

import (
	"context"
	"time"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is provider-agnostic; each Provider maps it onto its
// own wire format.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CompletionResponse is the provider-agnostic result of a completion call.
type CompletionResponse struct {
	Model            string `json:"model"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	FinishReason     string `json:"finish_reason"`
}

// StreamChunk is one incremental delta of a streaming completion.
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

// HealthStatus is a provider's last-known reachability.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// Provider is the contract every LLM connector satisfies.
type Provider interface {
	Name() string
	Models() []string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	HealthCheck(ctx context.Context) HealthStatus
}
