package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
}

// NewOpenAIProvider builds a connector with a pooled HTTP client.
func NewOpenAIProvider(apiKey string, models []string) *OpenAIProvider {
	if len(models) == 0 {
		models = []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		models:  models,
		client: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *OpenAIProvider) Name() string     { return "openai" }
func (p *OpenAIProvider) Models() []string { return p.models }

type openAIChatRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
		Delta        Message `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	payload := openAIChatRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	resp, err := p.do(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, apierr.Internal("openai returned no choices")
	}
	return &CompletionResponse{
		Model:            req.Model,
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		FinishReason:     resp.Choices[0].FinishReason,
	}, nil
}

func (p *OpenAIProvider) do(ctx context.Context, payload openAIChatRequest) (*openAIChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.InternalWrap(err, "marshal openai request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.InternalWrap(err, "build openai request")
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apierr.UnavailableWrap(err, "openai request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.RateLimit("openai rate limited the request")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, apierr.Unavailable("openai returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.InternalWrap(err, "decode openai response")
	}
	if out.Error != nil {
		return nil, apierr.Unavailable("openai: %s", out.Error.Message)
	}
	return &out, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	payload := openAIChatRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Temperature: req.Temperature, Stream: true}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.InternalWrap(err, "marshal openai stream request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.InternalWrap(err, "build openai stream request")
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apierr.UnavailableWrap(err, "openai stream request failed")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierr.Unavailable("openai returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	out := make(chan StreamChunk)
	go streamSSE(resp.Body, out, parseOpenAIChunk)
	return out, nil
}

func parseOpenAIChunk(data []byte) (string, bool, error) {
	if string(data) == "[DONE]" {
		return "", true, nil
	}
	var chunk openAIChatResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, err
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), LastCheck: start}
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()

	return HealthStatus{
		Healthy:   resp.StatusCode == http.StatusOK,
		Latency:   time.Since(start),
		LastCheck: time.Now(),
	}
}

func (p *OpenAIProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
}

// streamSSE reads a "data: ..." event stream and feeds each event's payload
// to parse, emitting StreamChunks until parse reports done or the body ends.
func streamSSE(body io.ReadCloser, out chan<- StreamChunk, parse func([]byte) (string, bool, error)) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		delta, done, err := parse([]byte(payload))
		if err != nil {
			out <- StreamChunk{Err: fmt.Errorf("parse stream chunk: %w", err)}
			return
		}
		if done {
			out <- StreamChunk{Done: true}
			return
		}
		if delta != "" {
			out <- StreamChunk{Delta: delta}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: err}
	}
}
