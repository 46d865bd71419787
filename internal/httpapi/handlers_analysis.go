package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/rs/zerolog"
)

type analysisHandlers struct {
	sched *scheduler.Scheduler
	log   zerolog.Logger
}

type submitBody struct {
	Symbol     string         `json:"symbol"`
	Market     string         `json:"market"`
	Kind       string         `json:"kind"`
	Parameters map[string]any `json:"parameters"`
}

var priorityByName = map[string]domain.TaskPriority{
	"low":    domain.PriorityLow,
	"normal": domain.PriorityNormal,
	"high":   domain.PriorityHigh,
	"urgent": domain.PriorityUrgent,
}

var validAnalysisKinds = map[string]bool{
	string(domain.KindFundamentals):  true,
	string(domain.KindTechnical):     true,
	string(domain.KindNews):          true,
	string(domain.KindComprehensive): true,
	string(domain.KindDebate):        true,
}

func (h *analysisHandlers) submit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body: %v", err))
		return
	}
	if body.Symbol == "" {
		writeError(w, apierr.Validation("symbol is required"))
		return
	}

	priorityName := r.URL.Query().Get("priority")
	if priorityName == "" {
		priorityName = "normal"
	}
	priority, ok := priorityByName[priorityName]
	if !ok {
		writeError(w, apierr.Validation("unknown priority %q", priorityName))
		return
	}

	market := body.Market
	if market == "" {
		market = string(domain.MarketUS)
	}

	kind := body.Kind
	if kind == "" {
		kind = string(domain.KindComprehensive)
	}
	if !validAnalysisKinds[kind] {
		writeError(w, apierr.Validation("unknown analysis kind %q", kind))
		return
	}

	metadata := map[string]any{"market": market, "kind": kind}
	for k, v := range body.Parameters {
		metadata[k] = v
	}

	taskID := h.sched.Submit(scheduler.SubmitRequest{
		Symbol:   body.Symbol,
		Kind:     domain.TaskKindAnalysis,
		Priority: priority,
		Metadata: metadata,
	})

	metrics := h.sched.Metrics()
	estimatedWait := int(metrics.AverageExecutionTime) * metrics.PendingTasks
	if estimatedWait == 0 {
		estimatedWait = 30
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":                 taskID,
		"estimated_wait_seconds": estimatedWait,
	})
}

func (h *analysisHandlers) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := h.sched.GetTask(id)
	if !ok {
		writeError(w, apierr.NotFound("task %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *analysisHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := h.sched.GetTask(id)
	if !ok {
		writeError(w, apierr.NotFound("task %s not found", id))
		return
	}
	if task.IsTerminal() {
		writeError(w, apierr.Validation("task %s already finished (%s)", id, task.Status))
		return
	}
	if !h.sched.Cancel(id) {
		writeError(w, apierr.Internal("failed to cancel task %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
