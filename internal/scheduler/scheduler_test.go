package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, s *Scheduler, id string, status domain.TaskStatus, timeout time.Duration) *domain.WorkflowTask {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, ok := s.GetTask(id)
		require.True(t, ok)
		if task.Status == status {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s in time", id, status)
	return nil
}

func TestSubmitAndExecuteSucceeds(t *testing.T) {
	s := New(2, zerolog.Nop())
	s.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "AAPL", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityNormal})

	task := waitForStatus(t, s, id, domain.TaskCompleted, 3*time.Second)
	assert.Equal(t, true, task.Result["ok"])
}

func TestRunningTaskIsNotPreemptedByHigherPriority(t *testing.T) {
	s := New(1, zerolog.Nop())

	var order []string
	var mu sync.Mutex
	block := make(chan struct{})

	s.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		mu.Lock()
		order = append(order, task.Symbol)
		mu.Unlock()
		<-block
		return map[string]any{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lowID := s.Submit(SubmitRequest{Symbol: "LOW", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityLow})
	s.Start(ctx)
	time.Sleep(1100 * time.Millisecond) // let the low task claim the single slot

	highID := s.Submit(SubmitRequest{Symbol: "HIGH", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityUrgent})
	close(block)

	waitForStatus(t, s, lowID, domain.TaskCompleted, 3*time.Second)
	waitForStatus(t, s, highID, domain.TaskCompleted, 3*time.Second)
	s.Stop()

	require.Len(t, order, 2)
	assert.Equal(t, "LOW", order[0])
}

func TestTaskRetriesOnFailure(t *testing.T) {
	s := New(1, zerolog.Nop())
	var attempts int32
	s.RegisterExecutor(domain.TaskKindDebate, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return nil, errors.New("transient failure")
		}
		return map[string]any{"attempt": n}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "MSFT", Kind: domain.TaskKindDebate, Priority: domain.PriorityNormal, MaxRetries: 2})
	task := waitForStatus(t, s, id, domain.TaskCompleted, 5*time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.EqualValues(t, 2, task.Result["attempt"])
}

func TestTaskTimesOut(t *testing.T) {
	s := New(1, zerolog.Nop())
	s.RegisterExecutor(domain.TaskKindRiskAssessment, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "TSLA", Kind: domain.TaskKindRiskAssessment, Priority: domain.PriorityNormal, TimeoutSeconds: 1})
	waitForStatus(t, s, id, domain.TaskTimeout, 3*time.Second)
}

func TestDependencyGating(t *testing.T) {
	s := New(2, zerolog.Nop())
	var depCompletedBeforeDependent bool

	s.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{}, nil
	})
	s.RegisterExecutor(domain.TaskKindDebate, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		dep, _ := s.GetTask(task.Dependencies[0])
		depCompletedBeforeDependent = dep.Status == domain.TaskCompleted
		return map[string]any{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	depID := s.Submit(SubmitRequest{Symbol: "GOOG", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityNormal})
	dependentID := s.Submit(SubmitRequest{Symbol: "GOOG", Kind: domain.TaskKindDebate, Priority: domain.PriorityUrgent, Dependencies: []string{depID}})

	s.Start(ctx)
	defer s.Stop()

	waitForStatus(t, s, dependentID, domain.TaskCompleted, 3*time.Second)
	assert.True(t, depCompletedBeforeDependent)
}

func TestCancelPendingTask(t *testing.T) {
	s := New(0, zerolog.Nop()) // cap of 0: nothing ever starts
	id := s.Submit(SubmitRequest{Symbol: "AMZN", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityNormal})

	assert.True(t, s.Cancel(id))
	task, ok := s.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskCancelled, task.Status)
}

func TestCancelUnknownTaskReturnsFalse(t *testing.T) {
	s := New(1, zerolog.Nop())
	assert.False(t, s.Cancel("does-not-exist"))
}

func TestMetricsReflectCompletedTasks(t *testing.T) {
	s := New(2, zerolog.Nop())
	s.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "NVDA", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityNormal})
	waitForStatus(t, s, id, domain.TaskCompleted, 3*time.Second)

	metrics := s.Metrics()
	assert.Equal(t, 1, metrics.TotalTasks)
	assert.Equal(t, 1, metrics.CompletedTasks)
	assert.Equal(t, float64(100), metrics.SuccessRate)
}

func TestMissingExecutorFailsTaskImmediately(t *testing.T) {
	s := New(1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "IBM", Kind: domain.TaskKindRiskAssessment, Priority: domain.PriorityNormal})
	waitForStatus(t, s, id, domain.TaskFailed, 3*time.Second)
}

func TestLifecycleCallbacksFire(t *testing.T) {
	s := New(1, zerolog.Nop())
	var started, completed int32
	s.RegisterCallback(EventTaskStarted, func(task *domain.WorkflowTask) { atomic.AddInt32(&started, 1) })
	s.RegisterCallback(EventTaskCompleted, func(task *domain.WorkflowTask) { atomic.AddInt32(&completed, 1) })
	s.RegisterExecutor(domain.TaskKindAnalysis, func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit(SubmitRequest{Symbol: "AMD", Kind: domain.TaskKindAnalysis, Priority: domain.PriorityNormal})
	waitForStatus(t, s, id, domain.TaskCompleted, 3*time.Second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&started))
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}
