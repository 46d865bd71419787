package domain

import (
	"strconv"
	"time"
)

// AlertLevel separates warnings (over threshold) from hard errors (well
// over threshold), matching the monitor's hysteresis split at 1.2x.
type AlertLevel string

const (
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

// AlertStatus is the lifecycle of one threshold breach. A single metric can
// only have one ACTIVE alert at a time; it moves to RESOLVED when the
// metric drops back under threshold. The ID is "threshold_<metric>", so a
// fresh breach reuses it and replaces the resolved alert.
type AlertStatus string

const (
	AlertInactive AlertStatus = "inactive"
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one threshold breach on one metric.
type Alert struct {
	ID         string      `json:"id"`
	Metric     string      `json:"metric"`
	Level      AlertLevel  `json:"level"`
	Status     AlertStatus `json:"status"`
	Value      float64     `json:"value"`
	Threshold  float64     `json:"threshold"`
	Message    string      `json:"message"`
	RaisedAt   time.Time   `json:"raised_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// SystemMetrics is one host sampling tick (CPU/mem/disk/net/connections).
type SystemMetrics struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	DiskPercent      float64   `json:"disk_percent"`
	NetworkBytesSent uint64    `json:"network_bytes_sent"`
	NetworkBytesRecv uint64    `json:"network_bytes_recv"`
	OpenConnections  int       `json:"open_connections"`
}

// PerformanceMetrics is the derived, application-level counterpart to
// SystemMetrics, sampled on the same tick.
type PerformanceMetrics struct {
	Timestamp         time.Time `json:"timestamp"`
	ThroughputPerMin  float64   `json:"throughput_per_min"`
	ErrorRate         float64   `json:"error_rate"`
	QueueLength       int       `json:"queue_length"`
	ConcurrentTasks   int       `json:"concurrent_tasks"`
	AverageLatencyMS  float64   `json:"average_latency_ms"`
}

// InstanceStatus is a load-balanced engine instance's health classification.
type InstanceStatus string

const (
	InstanceHealthy   InstanceStatus = "healthy"
	InstanceUnhealthy InstanceStatus = "unhealthy"
	InstanceUnknown   InstanceStatus = "unknown"
)

// EngineInstance is one backend analysis-engine replica behind the load
// balancer.
type EngineInstance struct {
	ID                string         `json:"instance_id"`
	Host              string         `json:"host"`
	Port              int            `json:"port"`
	Weight            int            `json:"weight"`
	Status            InstanceStatus `json:"status"`
	CurrentConnections int           `json:"current_connections"`
	TotalRequests     int64          `json:"total_requests"`
	FailedRequests    int64          `json:"failed_requests"`
	LastHealthCheck   *time.Time     `json:"last_health_check,omitempty"`
	ResponseTimeMS    float64        `json:"response_time_ms"`
	CPUUsage          float64        `json:"cpu_usage"`
	MemoryUsage       float64        `json:"memory_usage"`
}

// URL returns the instance's base health-check / forwarding URL.
func (e *EngineInstance) URL() string {
	return "http://" + e.Host + ":" + strconv.Itoa(e.Port)
}

// SuccessRate is 1.0 for an instance that has never handled a request.
func (e *EngineInstance) SuccessRate() float64 {
	if e.TotalRequests == 0 {
		return 1.0
	}
	return float64(e.TotalRequests-e.FailedRequests) / float64(e.TotalRequests)
}

// IsHealthy reports whether the instance is eligible for selection.
func (e *EngineInstance) IsHealthy() bool {
	return e.Status == InstanceHealthy
}
