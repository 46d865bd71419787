package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/quantdesk/orchestrator/internal/llm/router"
	"github.com/rs/zerolog"
)

type llmHandlers struct {
	router   *router.Router
	registry *llm.Registry
	usage    *llm.UsageStore
	log      zerolog.Logger
}

func (h *llmHandlers) models(w http.ResponseWriter, r *http.Request) {
	health := h.registry.Health()
	out := make([]map[string]any, 0, len(health))
	for _, name := range h.registry.List() {
		provider, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"provider": name,
			"models":   provider.Models(),
			"health":   health[name],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type chatCompletionBody struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	TaskType    string        `json:"task_type"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	UserID      string        `json:"user_id,omitempty"`
}

func (h *llmHandlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var body chatCompletionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body: %v", err))
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, apierr.Validation("messages is required"))
		return
	}
	if body.Stream {
		// Streaming completions are served by llm.Provider.Stream directly
		// against a single provider; this endpoint stays request/response
		// only and rejects streamed requests.
		writeError(w, apierr.Validation("stream=true is not supported on this endpoint"))
		return
	}

	task := domain.LLMTask(body.TaskType)
	if task == "" {
		task = domain.TaskQuickThinking
	}

	modelPreference := body.Model
	if modelPreference == "" {
		modelPreference = "auto"
	}

	resp, err := h.router.Complete(r.Context(), task, modelPreference, llm.CompletionRequest{
		Messages:    body.Messages,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *llmHandlers) usageStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.usage.Stats())
}
