package federation

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	tag    domain.SourceTag
	calls  int32
	err    error
	record *domain.DataRecord
}

func (f *fakeAdapter) Tag() domain.SourceTag { return f.tag }

func (f *fakeAdapter) Fetch(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func newTestFederation(t *testing.T) (*Federation, *PriorityManager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority_profiles.json")
	manager, err := NewPriorityManager(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, manager.SetPriorityForCategory(domain.MarketUS, domain.CategoryPrice, []domain.SourceTag{
		domain.SourceAlphaVantage, domain.SourceTwelveData,
	}))
	return New(manager, zerolog.Nop()), manager
}

func TestFetchReturnsFirstPrioritySuccess(t *testing.T) {
	f, _ := newTestFederation(t)
	primary := &fakeAdapter{tag: domain.SourceAlphaVantage, record: &domain.DataRecord{Symbol: "AAPL"}}
	secondary := &fakeAdapter{tag: domain.SourceTwelveData, record: &domain.DataRecord{Symbol: "AAPL"}}
	f.RegisterAdapter(primary, 0)
	f.RegisterAdapter(secondary, 0)

	rec, err := f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.EqualValues(t, 1, atomic.LoadInt32(&primary.calls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&secondary.calls))
}

func TestFetchFallsThroughOnFailure(t *testing.T) {
	f, _ := newTestFederation(t)
	primary := &fakeAdapter{tag: domain.SourceAlphaVantage, err: errors.New("rate limited")}
	secondary := &fakeAdapter{tag: domain.SourceTwelveData, record: &domain.DataRecord{Symbol: "AAPL"}}
	f.RegisterAdapter(primary, 0)
	f.RegisterAdapter(secondary, 0)

	rec, err := f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.EqualValues(t, 1, atomic.LoadInt32(&secondary.calls))
}

func TestFetchReturnsErrorWhenEverySourceFails(t *testing.T) {
	f, _ := newTestFederation(t)
	f.RegisterAdapter(&fakeAdapter{tag: domain.SourceAlphaVantage, err: errors.New("down")}, 0)
	f.RegisterAdapter(&fakeAdapter{tag: domain.SourceTwelveData, err: errors.New("down")}, 0)

	_, err := f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUnavailable, apiErr.Kind)
}

func TestFetchNoCandidatesReturnsNotFound(t *testing.T) {
	f, _ := newTestFederation(t)
	_, err := f.Fetch(context.Background(), domain.MarketHK, domain.CategoryTechnical, "0700")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	f, _ := newTestFederation(t)
	primary := &fakeAdapter{tag: domain.SourceAlphaVantage, err: errors.New("down")}
	secondary := &fakeAdapter{tag: domain.SourceTwelveData, record: &domain.DataRecord{Symbol: "AAPL"}}
	f.RegisterAdapter(primary, 0)
	f.RegisterAdapter(secondary, 0)

	for i := 0; i < 5; i++ {
		_, _ = f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	}
	callsAfterTrip := atomic.LoadInt32(&primary.calls)

	_, err := f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, callsAfterTrip, atomic.LoadInt32(&primary.calls))
}

func TestHealthReflectsSuccessfulFetch(t *testing.T) {
	f, _ := newTestFederation(t)
	primary := &fakeAdapter{tag: domain.SourceAlphaVantage, record: &domain.DataRecord{Symbol: "AAPL"}}
	f.RegisterAdapter(primary, 0)

	_, err := f.Fetch(context.Background(), domain.MarketUS, domain.CategoryPrice, "AAPL")
	require.NoError(t, err)

	health := f.Health()
	require.Len(t, health, 1)
	assert.Equal(t, domain.SourceHealthy, health[0].Health)
	assert.NotNil(t, health[0].LastSuccess)
}
