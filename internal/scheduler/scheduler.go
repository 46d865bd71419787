// Package scheduler implements the workflow task scheduler: a
// priority queue of analysis tasks with a bounded concurrency cap, per-task
// timeouts, retry-with-requeue on failure, dependency gating, and lifecycle
// callbacks. One tick of the scheduler loop pops ready tasks, starts them,
// and sweeps tasks that finished more than a day ago.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
)

// Executor runs one task to completion and returns its result payload.
type Executor func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error)

// Event identifies a task lifecycle transition callbacks can subscribe to.
type Event string

const (
	EventTaskStarted   Event = "task_started"
	EventTaskCompleted Event = "task_completed"
	EventTaskFailed    Event = "task_failed"
	EventTaskTimeout   Event = "task_timeout"
)

// Callback observes a task lifecycle event.
type Callback func(task *domain.WorkflowTask)

// SubmitRequest describes a new task to enqueue.
type SubmitRequest struct {
	Symbol         string
	Kind           domain.TaskKind
	Priority       domain.TaskPriority
	ScheduledAt    *time.Time
	TimeoutSeconds int
	MaxRetries     int
	Dependencies   []string
	Metadata       map[string]any
}

const defaultTimeoutSeconds = 300
const defaultMaxRetries = 3
const retentionWindow = 24 * time.Hour

// Scheduler is the task queue and execution loop.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*domain.WorkflowTask
	queue []string // task IDs, kept priority-sorted (highest first)

	running map[string]context.CancelFunc

	executors map[domain.TaskKind]Executor
	callbacks map[Event][]Callback

	maxConcurrentTasks int

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	log zerolog.Logger
}

// New creates a scheduler with the given concurrency cap.
func New(maxConcurrentTasks int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks:              make(map[string]*domain.WorkflowTask),
		running:            make(map[string]context.CancelFunc),
		executors:          make(map[domain.TaskKind]Executor),
		callbacks:          make(map[Event][]Callback),
		maxConcurrentTasks: maxConcurrentTasks,
		stopCh:             make(chan struct{}),
		log:                log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterExecutor binds an Executor to a task kind. Submitting a task of a
// kind with no registered executor fails it immediately when it is picked up.
func (s *Scheduler) RegisterExecutor(kind domain.TaskKind, executor Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[kind] = executor
}

// RegisterCallback subscribes to a lifecycle event.
func (s *Scheduler) RegisterCallback(event Event, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[event] = append(s.callbacks[event], cb)
}

// Start launches the scheduler loop. Safe to call once; a second call on an
// already-started scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info().Msg("workflow scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.processQueue(ctx)
				s.cleanupFinished()
			}
		}
	}()
}

// Stop cancels every running task and halts the scheduler loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for taskID, cancel := range s.running {
		cancel()
		if task, ok := s.tasks[taskID]; ok {
			task.Status = domain.TaskCancelled
		}
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info().Msg("workflow scheduler stopped")
}

// Submit enqueues a new task and returns its ID.
func (s *Scheduler) Submit(req SubmitRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	task := &domain.WorkflowTask{
		ID:             uuid.NewString(),
		Symbol:         req.Symbol,
		Kind:           req.Kind,
		Priority:       req.Priority,
		CreatedAt:      time.Now(),
		ScheduledAt:    req.ScheduledAt,
		Status:         domain.TaskPending,
		TimeoutSeconds: timeout,
		MaxRetries:     maxRetries,
		Dependencies:   req.Dependencies,
		Metadata:       req.Metadata,
	}

	s.tasks[task.ID] = task
	s.enqueueLocked(task.ID)
	s.log.Info().Str("task_id", task.ID).Str("kind", string(task.Kind)).Str("symbol", task.Symbol).Msg("task submitted")
	return task.ID
}

// GetTask returns an immutable snapshot of a task by ID, or (nil, false) if
// unknown. The returned task is a deep copy: it is never mutated by the
// scheduler goroutine and safe for a caller to read or marshal without
// holding s.mu.
func (s *Scheduler) GetTask(id string) (*domain.WorkflowTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return task.Snapshot(), true
}

// TasksBySymbol returns an immutable snapshot of every task submitted for a
// symbol.
func (s *Scheduler) TasksBySymbol(symbol string) []*domain.WorkflowTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WorkflowTask
	for _, task := range s.tasks {
		if task.Symbol == symbol {
			out = append(out, task.Snapshot())
		}
	}
	return out
}

// TasksByStatus returns an immutable snapshot of every task currently in a
// given status.
func (s *Scheduler) TasksByStatus(status domain.TaskStatus) []*domain.WorkflowTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WorkflowTask
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, task.Snapshot())
		}
	}
	return out
}

// Cancel cancels a pending or running task. Returns false if the task is
// unknown.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}

	switch task.Status {
	case domain.TaskRunning:
		if cancel, ok := s.running[id]; ok {
			cancel()
		}
	case domain.TaskPending:
		s.removeFromQueueLocked(id)
	}
	task.Status = domain.TaskCancelled
	s.log.Info().Str("task_id", id).Msg("task cancelled")
	return true
}

// Metrics computes a fresh snapshot of workflow-wide counters.
func (s *Scheduler) Metrics() domain.WorkflowMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsLocked()
}

func (s *Scheduler) metricsLocked() domain.WorkflowMetrics {
	m := domain.WorkflowMetrics{LastUpdated: time.Now()}
	var totalExecSeconds float64
	var completedWithDuration int

	for _, task := range s.tasks {
		m.TotalTasks++
		switch task.Status {
		case domain.TaskPending:
			m.PendingTasks++
		case domain.TaskRunning:
			m.RunningTasks++
		case domain.TaskCompleted:
			m.CompletedTasks++
		case domain.TaskFailed:
			m.FailedTasks++
		}
		if task.Status == domain.TaskCompleted && task.StartedAt != nil && task.CompletedAt != nil {
			totalExecSeconds += task.CompletedAt.Sub(*task.StartedAt).Seconds()
			completedWithDuration++
		}
	}

	totalFinished := m.CompletedTasks + m.FailedTasks
	if totalFinished > 0 {
		m.SuccessRate = float64(m.CompletedTasks) / float64(totalFinished) * 100
	}
	if completedWithDuration > 0 {
		m.AverageExecutionTime = totalExecSeconds / float64(completedWithDuration)
	}
	return m
}

func (s *Scheduler) enqueueLocked(taskID string) {
	for _, id := range s.queue {
		if id == taskID {
			return
		}
	}
	s.queue = append(s.queue, taskID)
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.tasks[s.queue[i]].Priority > s.tasks[s.queue[j]].Priority
	})
}

func (s *Scheduler) removeFromQueueLocked(taskID string) {
	for i, id := range s.queue {
		if id == taskID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) dependenciesSatisfiedLocked(task *domain.WorkflowTask) bool {
	for _, depID := range task.Dependencies {
		dep, ok := s.tasks[depID]
		if !ok || dep.Status != domain.TaskCompleted {
			return false
		}
	}
	return true
}

func (s *Scheduler) processQueue(ctx context.Context) {
	s.mu.Lock()
	if len(s.running) >= s.maxConcurrentTasks {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	var ready []string
	for _, taskID := range s.queue {
		task := s.tasks[taskID]
		if task.ScheduledAt != nil && task.ScheduledAt.After(now) {
			continue
		}
		if !s.dependenciesSatisfiedLocked(task) {
			continue
		}
		ready = append(ready, taskID)
	}

	var toStart []string
	for _, taskID := range ready {
		if len(s.running)+len(toStart) >= s.maxConcurrentTasks {
			break
		}
		toStart = append(toStart, taskID)
	}
	s.mu.Unlock()

	for _, taskID := range toStart {
		s.startTask(ctx, taskID)
	}
}

func (s *Scheduler) startTask(parent context.Context, taskID string) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	executor, hasExecutor := s.executors[task.Kind]
	if !hasExecutor {
		task.Status = domain.TaskFailed
		task.Error = "no executor registered for task kind " + string(task.Kind)
		s.mu.Unlock()
		s.log.Error().Str("task_id", taskID).Str("kind", string(task.Kind)).Msg("no executor registered")
		return
	}

	s.removeFromQueueLocked(taskID)
	startedAt := time.Now()
	task.Status = domain.TaskRunning
	task.StartedAt = &startedAt

	ctx, cancel := context.WithTimeout(parent, time.Duration(task.TimeoutSeconds)*time.Second)
	s.running[taskID] = cancel
	s.mu.Unlock()

	s.fireCallbacks(EventTaskStarted, task)
	s.log.Info().Str("task_id", taskID).Str("kind", string(task.Kind)).Msg("task started")

	s.wg.Add(1)
	go s.runTask(ctx, cancel, task, executor)
}

func (s *Scheduler) runTask(ctx context.Context, cancel context.CancelFunc, task *domain.WorkflowTask, executor Executor) {
	defer s.wg.Done()
	defer cancel()

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := executor(ctx, task)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	var (
		result map[string]any
		runErr error
	)
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case result = <-resultCh:
	case runErr = <-errCh:
	}

	s.mu.Lock()
	delete(s.running, task.ID)

	if task.Status == domain.TaskCancelled {
		s.mu.Unlock()
		return
	}

	switch {
	case runErr == nil:
		completedAt := time.Now()
		task.Status = domain.TaskCompleted
		task.CompletedAt = &completedAt
		task.Result = result
		task.Progress = 100
		s.mu.Unlock()
		s.fireCallbacks(EventTaskCompleted, task)
		s.log.Info().Str("task_id", task.ID).Msg("task completed")

	case ctx.Err() == context.DeadlineExceeded:
		task.Status = domain.TaskTimeout
		task.Error = "task execution timed out"
		s.mu.Unlock()
		s.fireCallbacks(EventTaskTimeout, task)
		s.log.Error().Str("task_id", task.ID).Msg("task timed out")

	default:
		task.Error = runErr.Error()
		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			task.Status = domain.TaskPending
			s.enqueueLocked(task.ID)
			s.mu.Unlock()
			s.log.Warn().Str("task_id", task.ID).Int("retry", task.RetryCount).Msg("task failed, retrying")
		} else {
			task.Status = domain.TaskFailed
			s.mu.Unlock()
			s.fireCallbacks(EventTaskFailed, task)
			s.log.Error().Str("task_id", task.ID).Err(runErr).Msg("task failed")
		}
	}
}

func (s *Scheduler) cleanupFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retentionWindow)
	for id, task := range s.tasks {
		if !task.IsTerminal() || task.CompletedAt == nil {
			continue
		}
		if task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}

func (s *Scheduler) fireCallbacks(event Event, task *domain.WorkflowTask) {
	s.mu.Lock()
	callbacks := append([]Callback(nil), s.callbacks[event]...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Str("event", string(event)).Msg("callback panicked")
				}
			}()
			cb(task)
		}()
	}
}
