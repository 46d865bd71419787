package cache

import (
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
)

// TTL constants for each data category, tiered by how often the underlying
// data actually changes.
const (
	TTLBasicInfo    = 30 * 24 * time.Hour // Static identifying data, rarely changes
	TTLFundamentals = 45 * 24 * time.Hour // Updates with quarterly filings
	TTLNews         = time.Hour           // Time-sensitive signal
	TTLPrice        = 10 * time.Minute    // Changes every tick during market hours
	TTLTechnical    = 10 * time.Minute    // Derived from price, same cadence
)

// TTLFor returns the cache lifetime for a category.
func TTLFor(category domain.DataCategory) time.Duration {
	switch category {
	case domain.CategoryBasicInfo:
		return TTLBasicInfo
	case domain.CategoryFundamentals:
		return TTLFundamentals
	case domain.CategoryNews:
		return TTLNews
	case domain.CategoryTechnical:
		return TTLTechnical
	case domain.CategoryPrice:
		return TTLPrice
	default:
		return TTLPrice
	}
}
