package federation

import (
	"context"

	"github.com/quantdesk/orchestrator/internal/domain"
)

// Adapter fetches one category of data for one symbol from a single
// external source. Each domain.SourceTag has exactly one Adapter
// implementation registered at startup; there is no runtime plugin loading.
type Adapter interface {
	Tag() domain.SourceTag
	Fetch(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error)
}
