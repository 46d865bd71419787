// Package balancer selects among multiple backend instances of the same
// service (e.g. horizontally scaled analysis-engine workers) using one of
// several load-balancing strategies, tracking per-instance health and
// response time so the health-aware strategy can score candidates.
package balancer

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Strategy picks which instance serves the next request.
type Strategy string

const (
	StrategyRoundRobin         Strategy = "round_robin"
	StrategyLeastConnections   Strategy = "least_connections"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
	StrategyRandom             Strategy = "random"
	StrategyHealthAware        Strategy = "health_aware"
)

// ErrNoHealthyInstance is returned by Select when every registered instance
// is currently marked unhealthy.
var ErrNoHealthyInstance = errors.New("balancer: no healthy instance available")

// Instance is one backend the balancer can route to.
type Instance struct {
	ID     string
	Host   string
	Port   int
	Weight int

	mu                sync.Mutex
	healthy           bool
	currentConns      int
	totalRequests     int64
	failedRequests    int64
	lastResponseTime  time.Duration
	lastHealthCheck   time.Time
	cpuUsage          float64
	memoryUsage       float64
}

func newInstance(id, host string, port, weight int) *Instance {
	if weight <= 0 {
		weight = 1
	}
	return &Instance{ID: id, Host: host, Port: port, Weight: weight, healthy: false}
}

// SuccessRate returns the fraction of requests that did not fail, 1.0 if
// no requests have been recorded yet.
func (i *Instance) SuccessRate() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.totalRequests == 0 {
		return 1.0
	}
	return float64(i.totalRequests-i.failedRequests) / float64(i.totalRequests)
}

// IsHealthy reports the instance's last recorded health-check result.
func (i *Instance) IsHealthy() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.healthy
}

// recordStart increments the in-flight connection counter and returns a
// func to call when the request finishes.
func (i *Instance) recordStart() func(responseTime time.Duration, failed bool) {
	i.mu.Lock()
	i.currentConns++
	i.totalRequests++
	i.mu.Unlock()

	return func(responseTime time.Duration, failed bool) {
		i.mu.Lock()
		i.currentConns--
		if i.currentConns < 0 {
			i.currentConns = 0
		}
		i.lastResponseTime = responseTime
		if failed {
			i.failedRequests++
		}
		i.mu.Unlock()
	}
}

// setHealth updates the instance's health flag.
func (i *Instance) setHealth(healthy bool) {
	i.mu.Lock()
	i.healthy = healthy
	i.lastHealthCheck = time.Now()
	i.mu.Unlock()
}

// SetResourceUsage records the instance's last-reported CPU/memory usage,
// fed into the health-aware score.
func (i *Instance) SetResourceUsage(cpuPercent, memoryPercent float64) {
	i.mu.Lock()
	i.cpuUsage = cpuPercent
	i.memoryUsage = memoryPercent
	i.mu.Unlock()
}

func (i *Instance) score() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	responseScore := i.lastResponseTime.Seconds()
	connectionScore := float64(i.currentConns) * 0.1
	successScore := (1 - i.successRateLocked()) * 10
	cpuScore := i.cpuUsage * 0.01
	memoryScore := i.memoryUsage * 0.01
	return responseScore + connectionScore + successScore + cpuScore + memoryScore
}

func (i *Instance) successRateLocked() float64 {
	if i.totalRequests == 0 {
		return 1.0
	}
	return float64(i.totalRequests-i.failedRequests) / float64(i.totalRequests)
}

// Balancer distributes requests across a registered set of instances.
type Balancer struct {
	strategy Strategy
	log      zerolog.Logger

	mu              sync.Mutex
	instances       map[string]*Instance
	roundRobinIndex int

	healthCheck        func(ctx context.Context, inst *Instance) bool
	healthCheckStop    chan struct{}
	healthCheckStopped sync.WaitGroup
}

const (
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 10 * time.Second
)

// New builds a Balancer with the given strategy. Health checking is started
// separately with StartHealthChecks, which takes the check function.
func New(strategy Strategy, log zerolog.Logger) *Balancer {
	return &Balancer{
		strategy:  strategy,
		log:       log.With().Str("component", "balancer").Logger(),
		instances: make(map[string]*Instance),
	}
}

// AddInstance registers a backend instance, initially unhealthy until the
// first health check (or SetHealthy) marks it up.
func (b *Balancer) AddInstance(id, host string, port, weight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[id] = newInstance(id, host, port, weight)
	b.log.Info().Str("instance", id).Str("host", host).Int("port", port).Msg("instance registered")
}

// RemoveInstance drops a backend instance from the pool.
func (b *Balancer) RemoveInstance(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.instances, id)
	b.log.Info().Str("instance", id).Msg("instance removed")
}

// SetHealthy directly marks an instance healthy or unhealthy, bypassing
// the health-check loop (used in tests and for manual overrides).
func (b *Balancer) SetHealthy(id string, healthy bool) {
	b.mu.Lock()
	inst, ok := b.instances[id]
	b.mu.Unlock()
	if ok {
		inst.setHealth(healthy)
	}
}

// Select picks the next instance to serve a request per the configured
// strategy, considering only instances currently marked healthy.
func (b *Balancer) Select() (*Instance, error) {
	b.mu.Lock()
	var healthy []*Instance
	for _, inst := range b.instances {
		if inst.IsHealthy() {
			healthy = append(healthy, inst)
		}
	}
	sort.Slice(healthy, func(i, j int) bool { return healthy[i].ID < healthy[j].ID })
	strategy := b.strategy
	idx := b.roundRobinIndex
	b.roundRobinIndex++
	b.mu.Unlock()

	if len(healthy) == 0 {
		return nil, ErrNoHealthyInstance
	}

	switch strategy {
	case StrategyRoundRobin:
		return healthy[idx%len(healthy)], nil
	case StrategyLeastConnections:
		return minBy(healthy, func(i *Instance) float64 { i.mu.Lock(); defer i.mu.Unlock(); return float64(i.currentConns) }), nil
	case StrategyWeightedRoundRobin:
		return weightedSelect(healthy), nil
	case StrategyRandom:
		return healthy[rand.Intn(len(healthy))], nil
	case StrategyHealthAware:
		return minBy(healthy, (*Instance).score), nil
	default:
		return healthy[0], nil
	}
}

// Track wraps a call to the selected instance, recording connection count
// and response time around fn's execution.
func (b *Balancer) Track(fn func(inst *Instance) error) error {
	inst, err := b.Select()
	if err != nil {
		return err
	}
	finish := inst.recordStart()
	started := time.Now()
	err = fn(inst)
	finish(time.Since(started), err != nil)
	return err
}

func minBy(instances []*Instance, score func(*Instance) float64) *Instance {
	best := instances[0]
	bestScore := score(best)
	for _, inst := range instances[1:] {
		if s := score(inst); s < bestScore {
			best, bestScore = inst, s
		}
	}
	return best
}

func weightedSelect(instances []*Instance) *Instance {
	total := 0
	for _, inst := range instances {
		total += inst.Weight
	}
	if total == 0 {
		return instances[0]
	}
	pick := rand.Intn(total)
	for _, inst := range instances {
		if pick < inst.Weight {
			return inst
		}
		pick -= inst.Weight
	}
	return instances[len(instances)-1]
}

// StartHealthChecks launches a background loop calling healthCheck against
// every registered instance every 30s, matching the reference balancer's
// interval. It is a no-op if healthCheck is nil.
func (b *Balancer) StartHealthChecks(ctx context.Context, healthCheck func(ctx context.Context, inst *Instance) bool) {
	if healthCheck == nil {
		return
	}
	b.healthCheck = healthCheck
	b.healthCheckStop = make(chan struct{})
	b.healthCheckStopped.Add(1)

	go func() {
		defer b.healthCheckStopped.Done()
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.healthCheckStop:
				return
			case <-ticker.C:
				b.runHealthChecks(ctx)
			}
		}
	}()
}

// StopHealthChecks halts the background health-check loop, if running.
func (b *Balancer) StopHealthChecks() {
	if b.healthCheckStop != nil {
		close(b.healthCheckStop)
		b.healthCheckStopped.Wait()
	}
}

func (b *Balancer) runHealthChecks(ctx context.Context) {
	b.mu.Lock()
	instances := make([]*Instance, 0, len(b.instances))
	for _, inst := range b.instances {
		instances = append(instances, inst)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			inst.setHealth(b.healthCheck(checkCtx, inst))
		}(inst)
	}
	wg.Wait()
}
