package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/events"
	"github.com/quantdesk/orchestrator/internal/monitor"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type workflowHandlers struct {
	sched *scheduler.Scheduler
	mon   *monitor.Monitor
	bus   *events.Bus
	ctx   context.Context
	log   zerolog.Logger
}

const maxTaskListLimit = 200
const writeTimeout = 5 * time.Second

func (h *workflowHandlers) tasks(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	statusFilter := r.URL.Query().Get("status")

	limit := maxTaskListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < maxTaskListLimit {
			limit = n
		}
	}

	var tasks []*domain.WorkflowTask
	switch {
	case symbol != "":
		tasks = h.sched.TasksBySymbol(symbol)
	case statusFilter != "":
		tasks = h.sched.TasksByStatus(domain.TaskStatus(statusFilter))
	default:
		for _, st := range []domain.TaskStatus{domain.TaskPending, domain.TaskRunning, domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled, domain.TaskTimeout} {
			tasks = append(tasks, h.sched.TasksByStatus(st)...)
		}
	}

	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *workflowHandlers) schedulerMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Metrics())
}

func (h *workflowHandlers) systemMetrics(w http.ResponseWriter, r *http.Request) {
	history := h.mon.SystemHistory()
	if len(history) == 0 {
		writeJSON(w, http.StatusOK, monitor.SystemMetrics{})
		return
	}
	writeJSON(w, http.StatusOK, history[len(history)-1])
}

func (h *workflowHandlers) performanceMetrics(w http.ResponseWriter, r *http.Request) {
	history := h.mon.PerformanceHistory()
	if len(history) == 0 {
		writeJSON(w, http.StatusOK, monitor.PerformanceMetrics{})
		return
	}
	writeJSON(w, http.StatusOK, history[len(history)-1])
}

func (h *workflowHandlers) alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.mon.ActiveAlerts()
	if r.URL.Query().Get("active_only") == "false" {
		writeJSON(w, http.StatusOK, alerts)
		return
	}
	active := make([]monitor.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Resolved {
			active = append(active, a)
		}
	}
	writeJSON(w, http.StatusOK, active)
}

func (h *workflowHandlers) schedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start(h.ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *workflowHandlers) schedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// eventsStream serves a unified Server-Sent Events feed of task, node, and
// analysis lifecycle events. Each client's subscription funnels into a
// small buffered channel so a slow reader drops events rather than
// blocking the publishing goroutine.
func (h *workflowHandlers) eventsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierr.Internal("streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientEvents := make(chan *events.Event, 100)
	unsubscribers := make([]func(), 0, 4)
	deliver := func(e *events.Event) {
		select {
		case clientEvents <- e:
		default:
			h.log.Warn().Str("type", string(e.Type)).Msg("events stream client too slow, dropping event")
		}
	}
	for _, t := range []events.Type{
		events.TaskSubmitted, events.TaskStarted, events.TaskCompleted, events.TaskFailed, events.TaskTimeout,
		events.NodeCompleted, events.AnalysisCompleted, events.AlertRaised, events.AlertResolved,
	} {
		unsubscribers = append(unsubscribers, h.bus.Subscribe(t, deliver))
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-clientEvents:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, mustMarshal(e))
			flusher.Flush()
		}
	}
}

// eventsSocket is the WebSocket counterpart to eventsStream, for clients
// that want a bidirectional connection (browser dashboards behind proxies
// that buffer SSE) rather than a one-way text/event-stream.
func (h *workflowHandlers) eventsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	clientEvents := make(chan *events.Event, 100)
	unsubscribers := make([]func(), 0, 4)
	deliver := func(e *events.Event) {
		select {
		case clientEvents <- e:
		default:
			h.log.Warn().Str("type", string(e.Type)).Msg("events socket client too slow, dropping event")
		}
	}
	for _, t := range []events.Type{
		events.TaskSubmitted, events.TaskStarted, events.TaskCompleted, events.TaskFailed, events.TaskTimeout,
		events.NodeCompleted, events.AnalysisCompleted, events.AlertRaised, events.AlertResolved,
	} {
		unsubscribers = append(unsubscribers, h.bus.Subscribe(t, deliver))
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case e := <-clientEvents:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, e)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("events socket write failed, closing")
				return
			}
		}
	}
}
