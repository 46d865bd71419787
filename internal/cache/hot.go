package cache

import (
	"context"
	"fmt"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Hot is the fast tier: a Redis key-value store with per-entry TTLs. It
// never holds data the durable tier doesn't also have a shot at holding;
// a hot-tier miss always falls through to Durable.
type Hot struct {
	client *redis.Client
}

// NewHot wraps an existing Redis client.
func NewHot(client *redis.Client) *Hot {
	return &Hot{client: client}
}

func hotKey(category domain.DataCategory, symbol string) string {
	return fmt.Sprintf("cache:%s:%s", category, symbol)
}

// Get returns the cached bytes, or (nil, false) on a miss.
func (h *Hot) Get(ctx context.Context, category domain.DataCategory, symbol string) ([]byte, bool, error) {
	val, err := h.client.Get(ctx, hotKey(category, symbol)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hot cache get failed for %s/%s: %w", category, symbol, err)
	}
	return val, true, nil
}

// Set stores payload with the category's TTL.
func (h *Hot) Set(ctx context.Context, category domain.DataCategory, symbol string, payload []byte) error {
	ttl := TTLFor(category)
	if err := h.client.Set(ctx, hotKey(category, symbol), payload, ttl).Err(); err != nil {
		return fmt.Errorf("hot cache set failed for %s/%s: %w", category, symbol, err)
	}
	return nil
}

// Delete evicts one entry. Idempotent.
func (h *Hot) Delete(ctx context.Context, category domain.DataCategory, symbol string) error {
	if err := h.client.Del(ctx, hotKey(category, symbol)).Err(); err != nil {
		return fmt.Errorf("hot cache delete failed for %s/%s: %w", category, symbol, err)
	}
	return nil
}
