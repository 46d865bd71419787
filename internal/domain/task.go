// Package domain provides the core types shared across the orchestrator.
package domain

import "time"

// TaskPriority orders pending work in the scheduler queue. Higher value wins ties.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the lowercase name used in logs and the HTTP API.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// TaskStatus is the lifecycle state of a WorkflowTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskTimeout   TaskStatus = "timeout"
)

// TaskKind identifies which executor a WorkflowTask is routed to.
type TaskKind string

const (
	TaskKindAnalysis      TaskKind = "analysis"
	TaskKindDebate        TaskKind = "debate"
	TaskKindRiskAssessment TaskKind = "risk_assessment"
)

// WorkflowTask is one unit of scheduled work: a single symbol's pass through
// one stage of the analysis graph.
type WorkflowTask struct {
	ID             string                 `json:"task_id"`
	Symbol         string                 `json:"symbol"`
	Kind           TaskKind               `json:"task_type"`
	Priority       TaskPriority           `json:"priority"`
	CreatedAt      time.Time              `json:"created_at"`
	ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Status         TaskStatus             `json:"status"`
	Progress       float64                `json:"progress"`
	Result         map[string]any         `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	RetryCount     int                    `json:"retry_count"`
	MaxRetries     int                    `json:"max_retries"`
	Dependencies   []string               `json:"dependencies,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// IsTerminal reports whether the task has left the active lifecycle.
func (t *WorkflowTask) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimeout:
		return true
	default:
		return false
	}
}

// Snapshot returns an immutable deep copy of the task, safe to hand to a
// reader (HTTP handler, SSE subscriber) while the scheduler goroutine keeps
// mutating the live task under its own lock.
func (t *WorkflowTask) Snapshot() *WorkflowTask {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ScheduledAt != nil {
		v := *t.ScheduledAt
		clone.ScheduledAt = &v
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		clone.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		clone.CompletedAt = &v
	}
	if t.Result != nil {
		clone.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			clone.Result[k] = v
		}
	}
	if t.Dependencies != nil {
		clone.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// WorkflowMetrics summarizes scheduler throughput for the status endpoint.
type WorkflowMetrics struct {
	TotalTasks            int       `json:"total_tasks"`
	PendingTasks          int       `json:"pending_tasks"`
	RunningTasks          int       `json:"running_tasks"`
	CompletedTasks        int       `json:"completed_tasks"`
	FailedTasks           int       `json:"failed_tasks"`
	AverageExecutionTime  float64   `json:"average_execution_time"`
	SuccessRate           float64   `json:"success_rate"`
	LastUpdated           time.Time `json:"last_updated"`
}

// AnalysisRequest is the client-facing submission that spawns one or more
// WorkflowTasks through the analysis graph.
type AnalysisRequest struct {
	Symbol          string         `json:"symbol"`
	Market          MarketType     `json:"market"`
	Kind            AnalysisKind   `json:"kind"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Priority        TaskPriority   `json:"priority"`
	MaxDebateRounds int            `json:"max_debate_rounds"`
	MaxRiskRounds   int            `json:"max_risk_rounds"`
	RequestedAt     time.Time      `json:"requested_at"`
}

// MarketType identifies which regional data-source priority profile applies.
type MarketType string

const (
	MarketAShare MarketType = "a_share"
	MarketUS     MarketType = "us_stock"
	MarketHK     MarketType = "hk_stock"
)

// AnalysisKind selects which node sequence the graph engine runs for a
// request. Each kind maps to a fixed entry in graph.NodeTable.
type AnalysisKind string

const (
	KindFundamentals  AnalysisKind = "fundamentals"
	KindTechnical     AnalysisKind = "technical"
	KindNews          AnalysisKind = "news"
	KindComprehensive AnalysisKind = "comprehensive"
	KindDebate        AnalysisKind = "debate"
)
