package cache

import (
	"context"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a fresh record from a live data source on a full
// cache miss. Implemented by the federation layer.
type Fetcher func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error)

// Cache is the tiered cache: hot Redis lookups first, durable SQLite
// second, falling through to Fetcher on a full miss. Concurrent misses for
// the same key are coalesced with singleflight so only one Fetcher call is
// in flight per key at a time.
type Cache struct {
	hot     *Hot
	durable *Durable
	group   singleflight.Group
	log     zerolog.Logger
}

// New builds a tiered cache over the given hot and durable stores.
func New(hot *Hot, durable *Durable, log zerolog.Logger) *Cache {
	return &Cache{
		hot:     hot,
		durable: durable,
		log:     log.With().Str("component", "cache").Logger(),
	}
}

// Get returns a fresh record for symbol, checking hot then durable tiers
// before calling fetch. A successful fetch is written through to both
// tiers before returning.
func (c *Cache) Get(ctx context.Context, category domain.DataCategory, symbol string, fetch Fetcher) (*domain.DataRecord, error) {
	if raw, ok, err := c.hot.Get(ctx, category, symbol); err != nil {
		c.log.Warn().Err(err).Str("category", string(category)).Str("symbol", symbol).Msg("hot tier read failed, falling through")
	} else if ok {
		var record domain.DataRecord
		if err := msgpack.Unmarshal(raw, &record); err == nil {
			return &record, nil
		}
	}

	if row, err := c.durable.GetIfFresh(category, symbol); err != nil {
		c.log.Warn().Err(err).Str("category", string(category)).Str("symbol", symbol).Msg("durable tier read failed, falling through")
	} else if row != nil {
		var record domain.DataRecord
		if err := msgpack.Unmarshal(row.Data, &record); err == nil {
			c.warmHot(ctx, category, symbol, &record)
			return &record, nil
		}
	}

	result, err, _ := c.group.Do(string(category)+"/"+symbol, func() (any, error) {
		record, err := fetch(ctx, category, symbol)
		if err != nil {
			if stale := c.staleFallback(category, symbol); stale != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("live fetch failed, serving stale durable record")
				return stale, nil
			}
			return nil, err
		}
		c.writeThrough(ctx, category, symbol, record)
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.DataRecord), nil
}

func (c *Cache) staleFallback(category domain.DataCategory, symbol string) *domain.DataRecord {
	row, err := c.durable.Get(category, symbol)
	if err != nil || row == nil {
		return nil
	}
	var record domain.DataRecord
	if err := msgpack.Unmarshal(row.Data, &record); err != nil {
		return nil
	}
	return &record
}

func (c *Cache) warmHot(ctx context.Context, category domain.DataCategory, symbol string, record *domain.DataRecord) {
	raw, err := msgpack.Marshal(record)
	if err != nil {
		return
	}
	if err := c.hot.Set(ctx, category, symbol, raw); err != nil {
		c.log.Debug().Err(err).Msg("hot tier warm failed")
	}
}

func (c *Cache) writeThrough(ctx context.Context, category domain.DataCategory, symbol string, record *domain.DataRecord) {
	now := time.Now()
	ttl := TTLFor(category)
	if err := c.durable.Store(category, symbol, record.Source, record, now, now.Add(ttl)); err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("durable tier write failed")
	}
	c.warmHot(ctx, category, symbol, record)
}

// Invalidate evicts a symbol's entry from both tiers.
func (c *Cache) Invalidate(ctx context.Context, category domain.DataCategory, symbol string) error {
	if err := c.hot.Delete(ctx, category, symbol); err != nil {
		return apierr.InternalWrap(err, "failed to invalidate hot tier for %s/%s", category, symbol)
	}
	if err := c.durable.Delete(category, symbol); err != nil {
		return apierr.InternalWrap(err, "failed to invalidate durable tier for %s/%s", category, symbol)
	}
	return nil
}
