// Package monitor samples host resource usage and scheduler throughput on a
// fixed interval, raising and clearing threshold alerts as the numbers cross
// configured limits. It subscribes to the scheduler's lifecycle callbacks
// and also reads the scheduler's Metrics on every sample.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// AlertLevel classifies how far a metric has crossed its threshold.
type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// SystemMetrics is one sample of host resource usage.
type SystemMetrics struct {
	CPUUsage           float64   `json:"cpu_usage"`
	MemoryUsage        float64   `json:"memory_usage"`
	DiskUsage          float64   `json:"disk_usage"`
	BytesSent          uint64    `json:"bytes_sent"`
	BytesReceived      uint64    `json:"bytes_recv"`
	ActiveConnections  int       `json:"active_connections"`
	Timestamp          time.Time `json:"timestamp"`
}

// PerformanceMetrics is one sample of scheduler throughput derived from
// domain.WorkflowMetrics plus the completed-task counter this monitor keeps
// between samples.
type PerformanceMetrics struct {
	AvgResponseTime float64   `json:"avg_response_time"`
	Throughput      float64   `json:"throughput"`
	ErrorRate       float64   `json:"error_rate"`
	QueueLength     int       `json:"queue_length"`
	ConcurrentTasks int       `json:"concurrent_tasks"`
	Timestamp       time.Time `json:"timestamp"`
}

// Alert is a threshold breach, kept until the metric falls back under its
// threshold.
type Alert struct {
	ID         string         `json:"id"`
	Level      AlertLevel     `json:"level"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Thresholds configures the level each metric raises an alert past.
type Thresholds struct {
	CPUUsage        float64
	MemoryUsage     float64
	DiskUsage       float64
	ErrorRate       float64
	AvgResponseTime float64
	QueueLength     int
}

// DefaultThresholds matches the reference monitor's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUUsage:        80.0,
		MemoryUsage:     85.0,
		DiskUsage:       90.0,
		ErrorRate:       10.0,
		AvgResponseTime: 300.0,
		QueueLength:     50,
	}
}

const (
	collectionInterval  = 30 * time.Second
	metricsRetention    = 24 * time.Hour
	// above-threshold breaches stay WARNING until they exceed the threshold
	// by this factor, at which point they escalate to ERROR.
	errorEscalationFactor = 1.2
)

// Monitor samples host and scheduler metrics on a fixed interval and
// maintains a rolling window of history plus the currently active alerts.
type Monitor struct {
	scheduler  *scheduler.Scheduler
	thresholds Thresholds
	log        zerolog.Logger

	mu                   sync.Mutex
	systemHistory        []SystemMetrics
	performanceHistory   []PerformanceMetrics
	alerts               map[string]*Alert
	completedSinceSample int
	lastSample           time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Monitor to a scheduler's lifecycle callbacks. It does not
// start sampling until Start is called.
func New(sched *scheduler.Scheduler, thresholds Thresholds, log zerolog.Logger) *Monitor {
	m := &Monitor{
		scheduler:  sched,
		thresholds: thresholds,
		log:        log.With().Str("component", "monitor").Logger(),
		alerts:     make(map[string]*Alert),
		lastSample: time.Now(),
	}
	sched.RegisterCallback(scheduler.EventTaskCompleted, m.onTaskCompleted)
	return m
}

func (m *Monitor) onTaskCompleted(task *domain.WorkflowTask) {
	m.mu.Lock()
	m.completedSinceSample++
	m.mu.Unlock()
}

// Start launches the sampling loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(collectionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
	m.log.Info().Msg("execution monitor started")
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.log.Info().Msg("execution monitor stopped")
}

func (m *Monitor) sample() {
	sys := m.collectSystemMetrics()
	perf := m.collectPerformanceMetrics()

	m.mu.Lock()
	m.systemHistory = append(m.systemHistory, sys)
	m.performanceHistory = append(m.performanceHistory, perf)
	m.mu.Unlock()

	m.checkAlerts(sys, perf)
	m.cleanup()
}

func (m *Monitor) collectSystemMetrics() SystemMetrics {
	metrics := SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		metrics.CPUUsage = pct[0]
	} else if err != nil {
		m.log.Warn().Err(err).Msg("failed to sample cpu usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryUsage = vm.UsedPercent
	} else {
		m.log.Warn().Err(err).Msg("failed to sample memory usage")
	}

	if du, err := disk.Usage("/"); err == nil {
		metrics.DiskUsage = du.UsedPercent
	} else {
		m.log.Warn().Err(err).Msg("failed to sample disk usage")
	}

	if counters, err := gopsnet.IOCounters(false); err == nil && len(counters) > 0 {
		metrics.BytesSent = counters[0].BytesSent
		metrics.BytesReceived = counters[0].BytesRecv
	}

	if conns, err := gopsnet.Connections("tcp"); err == nil {
		metrics.ActiveConnections = len(conns)
	}

	return metrics
}

func (m *Monitor) collectPerformanceMetrics() PerformanceMetrics {
	wm := m.scheduler.Metrics()

	m.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(m.lastSample).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(m.completedSinceSample) / elapsed
	}
	m.completedSinceSample = 0
	m.lastSample = now
	m.mu.Unlock()

	totalFinished := wm.CompletedTasks + wm.FailedTasks
	var errorRate float64
	if totalFinished > 0 {
		errorRate = float64(wm.FailedTasks) / float64(totalFinished) * 100
	}

	return PerformanceMetrics{
		AvgResponseTime: wm.AverageExecutionTime,
		Throughput:      throughput,
		ErrorRate:       errorRate,
		QueueLength:     wm.PendingTasks,
		ConcurrentTasks: wm.RunningTasks,
		Timestamp:       now,
	}
}

func (m *Monitor) checkAlerts(sys SystemMetrics, perf PerformanceMetrics) {
	m.checkThreshold("cpu_usage", sys.CPUUsage, m.thresholds.CPUUsage,
		fmt.Sprintf("cpu usage high: %.1f%%", sys.CPUUsage))
	m.checkThreshold("memory_usage", sys.MemoryUsage, m.thresholds.MemoryUsage,
		fmt.Sprintf("memory usage high: %.1f%%", sys.MemoryUsage))
	m.checkThreshold("disk_usage", sys.DiskUsage, m.thresholds.DiskUsage,
		fmt.Sprintf("disk usage high: %.1f%%", sys.DiskUsage))
	m.checkThreshold("error_rate", perf.ErrorRate, m.thresholds.ErrorRate,
		fmt.Sprintf("error rate high: %.1f%%", perf.ErrorRate))
	m.checkThreshold("avg_response_time", perf.AvgResponseTime, m.thresholds.AvgResponseTime,
		fmt.Sprintf("average response time high: %.1fs", perf.AvgResponseTime))
	m.checkThreshold("queue_length", float64(perf.QueueLength), float64(m.thresholds.QueueLength),
		fmt.Sprintf("task queue too long: %d tasks", perf.QueueLength))
}

func (m *Monitor) checkThreshold(metric string, value, threshold float64, message string) {
	alertID := "threshold_" + metric

	m.mu.Lock()
	defer m.mu.Unlock()

	if value > threshold {
		existing, ok := m.alerts[alertID]
		if !ok || existing.Resolved {
			level := AlertWarning
			if value >= threshold*errorEscalationFactor {
				level = AlertError
			}
			m.alerts[alertID] = &Alert{
				ID:        alertID,
				Level:     level,
				Title:     metric + " threshold breach",
				Message:   message,
				Source:    "execution_monitor",
				Timestamp: time.Now(),
				Metadata:  map[string]any{"current_value": value, "threshold": threshold},
			}
			m.log.Warn().Str("metric", metric).Float64("value", value).Msg("alert raised")
		}
		return
	}

	if existing, ok := m.alerts[alertID]; ok && !existing.Resolved {
		existing.Resolved = true
		now := time.Now()
		existing.ResolvedAt = &now
		m.log.Info().Str("metric", metric).Msg("alert resolved")
	}
}

func (m *Monitor) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-metricsRetention)

	keptSys := m.systemHistory[:0:0]
	for _, s := range m.systemHistory {
		if s.Timestamp.After(cutoff) {
			keptSys = append(keptSys, s)
		}
	}
	m.systemHistory = keptSys

	keptPerf := m.performanceHistory[:0:0]
	for _, p := range m.performanceHistory {
		if p.Timestamp.After(cutoff) {
			keptPerf = append(keptPerf, p)
		}
	}
	m.performanceHistory = keptPerf

	for id, alert := range m.alerts {
		if alert.Resolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
		}
	}
}

// SystemHistory returns a copy of the retained system metric samples.
func (m *Monitor) SystemHistory() []SystemMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SystemMetrics(nil), m.systemHistory...)
}

// PerformanceHistory returns a copy of the retained performance metric samples.
func (m *Monitor) PerformanceHistory() []PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PerformanceMetrics(nil), m.performanceHistory...)
}

// ActiveAlerts returns every unresolved alert.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}
