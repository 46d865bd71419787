package monitor

import (
	"testing"
	"time"

	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckThresholdRaisesWarningBelowEscalationFactor(t *testing.T) {
	m := New(scheduler.New(1, zerolog.Nop()), DefaultThresholds(), zerolog.Nop())

	m.checkThreshold("cpu_usage", 85, 80, "cpu usage high")

	alerts := m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].Level)
}

func TestCheckThresholdEscalatesToError(t *testing.T) {
	m := New(scheduler.New(1, zerolog.Nop()), DefaultThresholds(), zerolog.Nop())

	m.checkThreshold("cpu_usage", 100, 80, "cpu usage critical")

	alerts := m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertError, alerts[0].Level)
}

func TestCheckThresholdResolvesWhenBackUnderLimit(t *testing.T) {
	m := New(scheduler.New(1, zerolog.Nop()), DefaultThresholds(), zerolog.Nop())

	m.checkThreshold("cpu_usage", 90, 80, "high")
	require.Len(t, m.ActiveAlerts(), 1)

	m.checkThreshold("cpu_usage", 10, 80, "fine")
	assert.Empty(t, m.ActiveAlerts())
}

func TestCleanupDropsOldResolvedAlerts(t *testing.T) {
	m := New(scheduler.New(1, zerolog.Nop()), DefaultThresholds(), zerolog.Nop())

	m.checkThreshold("cpu_usage", 90, 80, "high")
	m.checkThreshold("cpu_usage", 10, 80, "fine")

	m.mu.Lock()
	old := time.Now().Add(-48 * time.Hour)
	m.alerts["threshold_cpu_usage"].ResolvedAt = &old
	m.mu.Unlock()

	m.cleanup()

	m.mu.Lock()
	_, exists := m.alerts["threshold_cpu_usage"]
	m.mu.Unlock()
	assert.False(t, exists)
}

func TestOnTaskCompletedIncrementsCounter(t *testing.T) {
	sched := scheduler.New(1, zerolog.Nop())
	m := New(sched, DefaultThresholds(), zerolog.Nop())

	m.onTaskCompleted(nil)
	m.mu.Lock()
	count := m.completedSinceSample
	m.mu.Unlock()
	assert.Equal(t, 1, count)
}
