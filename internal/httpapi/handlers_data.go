package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/cache"
	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/federation"
	"github.com/rs/zerolog"
)

type dataHandlers struct {
	federation *federation.Federation
	cache      *cache.Cache
	log        zerolog.Logger
}

func (h *dataHandlers) fetch(w http.ResponseWriter, r *http.Request) {
	category := domain.DataCategory(chi.URLParam(r, "category"))
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, apierr.Validation("symbol query parameter is required"))
		return
	}
	market := domain.MarketType(r.URL.Query().Get("market"))
	if market == "" {
		market = domain.MarketUS
	}

	record, err := h.cache.Get(r.Context(), category, symbol, func(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
		return h.federation.Fetch(ctx, market, category, symbol)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
