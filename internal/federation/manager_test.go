package federation

import (
	"path/filepath"
	"testing"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *PriorityManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority_profiles.json")
	m, err := NewPriorityManager(path, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestNewPriorityManagerWritesDefaultOnMissingFile(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, "default", m.CurrentProfile())

	sources := m.SourcesFor(domain.MarketUS, domain.CategoryPrice)
	assert.Equal(t, []domain.SourceTag{
		domain.SourceAlphaVantage, domain.SourceTwelveData, domain.SourceIEXCloud, domain.SourceFinnhub, domain.SourceYFinance,
	}, sources)
}

func TestCreateAndSwitchProfile(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateCustomProfile("aggressive", "prefers akshare everywhere", "default"))
	require.NoError(t, m.SetCurrentProfile("aggressive"))
	assert.Equal(t, "aggressive", m.CurrentProfile())

	profiles := m.AvailableProfiles()
	assert.True(t, profiles["aggressive"])
	assert.False(t, profiles["default"])
}

func TestSetPriorityForCategoryPersists(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetPriorityForCategory(domain.MarketAShare, domain.CategoryNews, []domain.SourceTag{domain.SourceBaostock}))
	assert.Equal(t, []domain.SourceTag{domain.SourceBaostock}, m.SourcesFor(domain.MarketAShare, domain.CategoryNews))
}

func TestCustomOverrideTakesPrecedence(t *testing.T) {
	m := newTestManager(t)
	m.mu.Lock()
	m.config.CustomOverrides = &domain.CustomOverrides{
		Enabled: true,
		Overrides: map[string][]domain.SourceTag{
			domain.PriorityKey(domain.MarketUS, domain.CategoryPrice): {domain.SourceYFinance},
		},
	}
	m.mu.Unlock()

	assert.Equal(t, []domain.SourceTag{domain.SourceYFinance}, m.SourcesFor(domain.MarketUS, domain.CategoryPrice))
}

func TestDeleteProfileRejectsDefaultAndFallsBackActive(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateCustomProfile("temp", "", "default"))
	require.NoError(t, m.SetCurrentProfile("temp"))
	require.NoError(t, m.DeleteProfile("temp"))
	assert.Equal(t, "default", m.CurrentProfile())

	err := m.DeleteProfile("default")
	assert.Error(t, err)
}

func TestSourcesForUnknownKeyReturnsEmpty(t *testing.T) {
	m := newTestManager(t)
	assert.Empty(t, m.SourcesFor(domain.MarketType("mars"), domain.CategoryPrice))
}
