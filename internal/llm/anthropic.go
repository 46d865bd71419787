package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider speaks Anthropic's Messages API, which uses a separate
// system prompt field and an x-api-key header instead of OpenAI's bearer auth.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
}

// NewAnthropicProvider builds a connector with a pooled HTTP client.
func NewAnthropicProvider(apiKey string, models []string) *AnthropicProvider {
	if len(models) == 0 {
		models = []string{"claude-3-opus", "claude-3-sonnet", "claude-3-haiku"}
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicBaseURL,
		models:  models,
		client: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *AnthropicProvider) Name() string     { return "anthropic" }
func (p *AnthropicProvider) Models() []string { return p.models }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// splitSystem pulls a leading system message out of the OpenAI-shaped
// message list, since Anthropic's wire format carries it as a top-level
// field rather than a role in the messages array.
func splitSystem(messages []Message) (string, []anthropicMessage) {
	var system string
	rest := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem && system == "" {
			system = m.Content
			continue
		}
		rest = append(rest, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return system, rest
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	system, messages := splitSystem(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{Model: req.Model, MaxTokens: maxTokens, System: system, Messages: messages, Temperature: req.Temperature}

	resp, err := p.do(ctx, payload)
	if err != nil {
		return nil, err
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &CompletionResponse{
		Model:            req.Model,
		Content:          text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		FinishReason:     resp.StopReason,
	}, nil
}

func (p *AnthropicProvider) do(ctx context.Context, payload anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.InternalWrap(err, "marshal anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.InternalWrap(err, "build anthropic request")
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apierr.UnavailableWrap(err, "anthropic request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.RateLimit("anthropic rate limited the request")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, apierr.Unavailable("anthropic returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.InternalWrap(err, "decode anthropic response")
	}
	if out.Error != nil {
		return nil, apierr.Unavailable("anthropic: %s", out.Error.Message)
	}
	return &out, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	system, messages := splitSystem(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{Model: req.Model, MaxTokens: maxTokens, System: system, Messages: messages, Temperature: req.Temperature, Stream: true}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.InternalWrap(err, "marshal anthropic stream request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.InternalWrap(err, "build anthropic stream request")
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apierr.UnavailableWrap(err, "anthropic stream request failed")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierr.Unavailable("anthropic returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	out := make(chan StreamChunk)
	go streamSSE(resp.Body, out, parseAnthropicChunk)
	return out, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

func parseAnthropicChunk(data []byte) (string, bool, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", false, err
	}
	if ev.Type == "message_stop" {
		return "", true, nil
	}
	if ev.Type == "content_block_delta" {
		return ev.Delta.Text, false, nil
	}
	return "", false, nil
}

func (p *AnthropicProvider) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := p.Complete(ctx, CompletionRequest{
		Model:     p.models[0],
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), LastCheck: time.Now()}
	}
	return HealthStatus{Healthy: true, Latency: time.Since(start), LastCheck: time.Now()}
}

func (p *AnthropicProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}
