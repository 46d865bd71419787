package domain

import "time"

// SourceTag is a compile-time identifier for a registered data source
// adapter. Using an enum instead of a runtime-imported class keeps the set
// of sources fixed and known at build time.
type SourceTag string

const (
	SourceTushare      SourceTag = "tushare"
	SourceAkshare      SourceTag = "akshare"
	SourceBaostock     SourceTag = "baostock"
	SourceAlphaVantage SourceTag = "alpha_vantage"
	SourceTwelveData   SourceTag = "twelve_data"
	SourceIEXCloud     SourceTag = "iex_cloud"
	SourceFinnhub      SourceTag = "finnhub"
	SourceYFinance     SourceTag = "yfinance"
)

// SourceHealth is the live status of one registered source.
type SourceHealth string

const (
	SourceHealthy   SourceHealth = "healthy"
	SourceDegraded  SourceHealth = "degraded"
	SourceError     SourceHealth = "error"
	SourceUnknown   SourceHealth = "unknown"
)

// DataSource is a federation-managed external data provider.
type DataSource struct {
	Tag              SourceTag    `json:"tag"`
	Health           SourceHealth `json:"health"`
	ConsecutiveFails int          `json:"consecutive_fails"`
	RateLimitPerMin  int          `json:"rate_limit_per_min"`
	LastSuccess      *time.Time   `json:"last_success,omitempty"`
	LastError        string       `json:"last_error,omitempty"`
}

// PriorityProfile maps a "<market>_<category>" key to an ordered preference
// list of sources to try, matching the on-disk JSON configuration format.
type PriorityProfile struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	Priorities  map[string][]SourceTag      `json:"priorities"`
}

// PriorityKey builds the "<market>_<category>" lookup key used both in the
// JSON configuration and at runtime.
func PriorityKey(market MarketType, category DataCategory) string {
	return string(market) + "_" + string(category)
}

// PriorityConfig is the root of the on-disk priority_profiles.json document.
type PriorityConfig struct {
	Version         string                     `json:"version"`
	CurrentProfile  string                     `json:"current_profile"`
	Profiles        map[string]PriorityProfile `json:"priority_profiles"`
	CustomOverrides *CustomOverrides           `json:"custom_overrides,omitempty"`
}

// CustomOverrides layers a per-key override on top of whichever profile is
// current, without having to duplicate the whole profile.
type CustomOverrides struct {
	Enabled   bool                   `json:"enabled"`
	Overrides map[string][]SourceTag `json:"overrides"`
}
