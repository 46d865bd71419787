package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// defaultRateLimitPerMin is used for a source with no configured override.
const defaultRateLimitPerMin = 60

// sourceGuard bundles the circuit breaker and rate limiter protecting one
// adapter, plus the health bookkeeping surfaced on the status endpoint.
type sourceGuard struct {
	adapter Adapter
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	mu     sync.Mutex
	health domain.DataSource
}

// Federation selects and calls the right source adapter for a
// market/category request, walking the priority list and skipping sources
// whose circuit is open or whose rate limiter rejects the call.
type Federation struct {
	manager *PriorityManager
	guards  map[domain.SourceTag]*sourceGuard
	log     zerolog.Logger
}

// New builds a Federation over a priority manager with no sources; adapters
// are added afterwards with RegisterAdapter.
func New(manager *PriorityManager, log zerolog.Logger) *Federation {
	return &Federation{
		manager: manager,
		guards:  make(map[domain.SourceTag]*sourceGuard),
		log:     log.With().Str("component", "federation").Logger(),
	}
}

// RegisterAdapter adds a source to the federation with its own breaker and
// rate limiter. ratePerMin <= 0 uses defaultRateLimitPerMin.
func (f *Federation) RegisterAdapter(adapter Adapter, ratePerMin int) {
	if ratePerMin <= 0 {
		ratePerMin = defaultRateLimitPerMin
	}

	tag := adapter.Tag()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(tag),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	f.guards[tag] = &sourceGuard{
		adapter: adapter,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60), ratePerMin),
		health:  domain.DataSource{Tag: tag, Health: domain.SourceHealthy, RateLimitPerMin: ratePerMin},
	}
}

// Fetch tries every source in the market/category's priority list in order,
// returning the first success. It takes a market argument that
// cache.Fetcher lacks, so callers wrap it in a closure to use it with
// cache.Cache.Get.
func (f *Federation) Fetch(ctx context.Context, market domain.MarketType, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
	candidates := f.manager.SourcesFor(market, category)
	if len(candidates) == 0 {
		return nil, apierr.NotFound("no data sources configured for %s/%s", market, category)
	}

	var lastErr error
	for _, tag := range candidates {
		guard, ok := f.guards[tag]
		if !ok {
			f.log.Warn().Str("source", string(tag)).Msg("source in priority list has no registered adapter")
			continue
		}

		if !guard.limiter.Allow() {
			f.log.Debug().Str("source", string(tag)).Msg("source rate-limited, skipping")
			continue
		}

		result, err := guard.breaker.Execute(func() (any, error) {
			return guard.adapter.Fetch(ctx, category, symbol)
		})
		if err != nil {
			lastErr = err
			guard.recordFailure(err)
			f.log.Warn().Err(err).Str("source", string(tag)).Str("symbol", symbol).Msg("source fetch failed, trying next")
			continue
		}

		guard.recordSuccess()
		return result.(*domain.DataRecord), nil
	}

	if lastErr != nil {
		return nil, apierr.UnavailableWrap(lastErr, "every data source for %s/%s exhausted", market, category)
	}
	return nil, apierr.Unavailable("every data source for %s/%s was skipped (rate-limited or unregistered)", market, category)
}

// Health returns a snapshot of every registered source's current status.
func (f *Federation) Health() []domain.DataSource {
	out := make([]domain.DataSource, 0, len(f.guards))
	for _, guard := range f.guards {
		guard.mu.Lock()
		out = append(out, guard.health)
		guard.mu.Unlock()
	}
	return out
}

func (g *sourceGuard) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.health.Health = domain.SourceHealthy
	g.health.ConsecutiveFails = 0
	g.health.LastSuccess = &now
	g.health.LastError = ""
}

func (g *sourceGuard) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.health.ConsecutiveFails++
	g.health.LastError = fmt.Sprintf("%v", err)
	if g.health.ConsecutiveFails >= 5 {
		g.health.Health = domain.SourceError
	} else {
		g.health.Health = domain.SourceDegraded
	}
}
