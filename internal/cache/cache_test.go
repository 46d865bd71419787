package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	return New(NewHot(redisClient), NewDurable(db), zerolog.Nop())
}

func TestCacheMissInvokesFetcherOnce(t *testing.T) {
	c := setupCache(t)
	var calls int32

	fetch := func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.DataRecord{Symbol: symbol, Category: category, Source: "tushare", FetchedAt: time.Now()}, nil
	}

	record, err := c.Get(context.Background(), domain.CategoryPrice, "AAPL", fetch)
	require.NoError(t, err)
	require.Equal(t, "AAPL", record.Symbol)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheSecondGetHitsHotTier(t *testing.T) {
	c := setupCache(t)
	var calls int32

	fetch := func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.DataRecord{Symbol: symbol, Category: category, Source: "tushare", FetchedAt: time.Now()}, nil
	}

	ctx := context.Background()
	_, err := c.Get(ctx, domain.CategoryFundamentals, "MSFT", fetch)
	require.NoError(t, err)
	_, err = c.Get(ctx, domain.CategoryFundamentals, "MSFT", fetch)
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	c := setupCache(t)
	var calls int32

	fetch := func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return &domain.DataRecord{Symbol: symbol, Category: category, Source: "akshare", FetchedAt: time.Now()}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), domain.CategoryNews, "TSLA", fetch)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheInvalidate(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	fetch := func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		return &domain.DataRecord{Symbol: symbol, Category: category, Source: "baostock", FetchedAt: time.Now()}, nil
	}

	_, err := c.Get(ctx, domain.CategoryTechnical, "NFLX", fetch)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, domain.CategoryTechnical, "NFLX"))

	var calls int32
	fetchAgain := func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.DataRecord{Symbol: symbol, Category: category, Source: "baostock", FetchedAt: time.Now()}, nil
	}
	_, err = c.Get(ctx, domain.CategoryTechnical, "NFLX", fetchAgain)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
