// Package federation implements the data source federation layer: a
// priority-profile-driven chooser over registered source adapters, with
// circuit breaking and rate limiting per source.
package federation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
)

// defaultProfile is used when no on-disk configuration exists yet.
func defaultProfile() domain.PriorityConfig {
	return domain.PriorityConfig{
		Version:        "1.0",
		CurrentProfile: "default",
		Profiles: map[string]domain.PriorityProfile{
			"default": {
				Name: "default",
				Priorities: map[string][]domain.SourceTag{
					"a_share_basic_info":    {domain.SourceTushare, domain.SourceAkshare, domain.SourceBaostock},
					"a_share_price":         {domain.SourceTushare, domain.SourceAkshare, domain.SourceBaostock},
					"a_share_fundamentals":  {domain.SourceTushare, domain.SourceAkshare, domain.SourceBaostock},
					"a_share_news":          {domain.SourceAkshare},
					"us_stock_basic_info":   {domain.SourceAlphaVantage, domain.SourceTwelveData, domain.SourceIEXCloud, domain.SourceFinnhub, domain.SourceYFinance},
					"us_stock_price":        {domain.SourceAlphaVantage, domain.SourceTwelveData, domain.SourceIEXCloud, domain.SourceFinnhub, domain.SourceYFinance},
					"us_stock_fundamentals": {domain.SourceAlphaVantage, domain.SourceTwelveData, domain.SourceIEXCloud, domain.SourceFinnhub},
					"us_stock_news":         {domain.SourceTwelveData, domain.SourceIEXCloud, domain.SourceFinnhub},
					"hk_stock_basic_info":   {domain.SourceAkshare, domain.SourceYFinance},
					"hk_stock_price":        {domain.SourceAkshare, domain.SourceYFinance},
					"hk_stock_news":         {domain.SourceAkshare},
				},
			},
		},
	}
}

// PriorityManager owns the on-disk priority_profiles.json document: which
// profile is active, the ordered source list per "<market>_<category>" key,
// and any custom overrides layered on top.
type PriorityManager struct {
	mu         sync.RWMutex
	configFile string
	config     domain.PriorityConfig
	log        zerolog.Logger
}

// NewPriorityManager loads configFile, creating it with the default
// profile if it doesn't exist yet.
func NewPriorityManager(configFile string, log zerolog.Logger) (*PriorityManager, error) {
	m := &PriorityManager{
		configFile: configFile,
		log:        log.With().Str("component", "priority_manager").Logger(),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PriorityManager) load() error {
	data, err := os.ReadFile(m.configFile)
	if os.IsNotExist(err) {
		m.log.Warn().Str("path", m.configFile).Msg("priority config missing, writing default")
		m.config = defaultProfile()
		return m.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read priority config: %w", err)
	}

	var cfg domain.PriorityConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		m.log.Error().Err(err).Msg("priority config is malformed, falling back to default")
		m.config = defaultProfile()
		return nil
	}
	m.config = cfg
	return nil
}

func (m *PriorityManager) saveLocked() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal priority config: %w", err)
	}
	if err := os.WriteFile(m.configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write priority config: %w", err)
	}
	return nil
}

// CurrentProfile returns the active profile's name.
func (m *PriorityManager) CurrentProfile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.CurrentProfile
}

// SetCurrentProfile switches the active profile, failing if it doesn't exist.
func (m *PriorityManager) SetCurrentProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.config.Profiles[name]; !ok {
		return fmt.Errorf("priority profile %q does not exist", name)
	}
	m.config.CurrentProfile = name
	return m.saveLocked()
}

// SourcesFor returns the ordered candidate list for a market/category key,
// with any enabled custom override applied on top of the active profile.
func (m *PriorityManager) SourcesFor(market domain.MarketType, category domain.DataCategory) []domain.SourceTag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.PriorityKey(market, category)

	profileName := m.config.CurrentProfile
	profile, ok := m.config.Profiles[profileName]
	if !ok {
		profile, ok = m.config.Profiles["default"]
		if !ok {
			return nil
		}
	}

	sources := profile.Priorities[key]

	if m.config.CustomOverrides != nil && m.config.CustomOverrides.Enabled {
		if override, ok := m.config.CustomOverrides.Overrides[key]; ok {
			sources = override
		}
	}
	return sources
}

// SetPriorityForCategory overwrites the candidate list for one key in the
// active profile.
func (m *PriorityManager) SetPriorityForCategory(market domain.MarketType, category domain.DataCategory, sources []domain.SourceTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profileName := m.config.CurrentProfile
	profile, ok := m.config.Profiles[profileName]
	if !ok {
		return fmt.Errorf("current priority profile %q does not exist", profileName)
	}
	if profile.Priorities == nil {
		profile.Priorities = map[string][]domain.SourceTag{}
	}
	profile.Priorities[domain.PriorityKey(market, category)] = sources
	m.config.Profiles[profileName] = profile
	return m.saveLocked()
}

// CreateCustomProfile clones base (or "default" if base doesn't exist) under
// a new name.
func (m *PriorityManager) CreateCustomProfile(name, description, base string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.config.Profiles[name]; exists {
		return fmt.Errorf("priority profile %q already exists", name)
	}

	baseProfile, ok := m.config.Profiles[base]
	if !ok {
		baseProfile = m.config.Profiles["default"]
	}

	cloned := make(map[string][]domain.SourceTag, len(baseProfile.Priorities))
	for k, v := range baseProfile.Priorities {
		cloned[k] = append([]domain.SourceTag(nil), v...)
	}

	m.config.Profiles[name] = domain.PriorityProfile{Name: name, Description: description, Priorities: cloned}
	return m.saveLocked()
}

// DeleteProfile removes a profile. The default profile cannot be deleted;
// deleting the active profile falls back to "default".
func (m *PriorityManager) DeleteProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "default" {
		return fmt.Errorf("cannot delete the default priority profile")
	}
	if _, ok := m.config.Profiles[name]; !ok {
		return fmt.Errorf("priority profile %q does not exist", name)
	}
	if m.config.CurrentProfile == name {
		m.config.CurrentProfile = "default"
	}
	delete(m.config.Profiles, name)
	return m.saveLocked()
}

// AvailableProfiles lists every profile name along with whether it's active.
func (m *PriorityManager) AvailableProfiles() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]bool, len(m.config.Profiles))
	for name := range m.config.Profiles {
		result[name] = name == m.config.CurrentProfile
	}
	return result
}
