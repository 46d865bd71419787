package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type localEntry struct {
	id             string
	situation      string
	recommendation string
	metadata       map[string]string
	timestamp      time.Time
}

// LocalBackend is an in-process Backend with no real embedding model: it
// scores similarity by token overlap (Jaccard over lowercased words) rather
// than a vector nearest-neighbor search. It exists for tests and for running
// this module without a vector database wired up; it is not a production
// substitute for one.
type LocalBackend struct {
	mu          sync.RWMutex
	collections map[string][]localEntry
}

// NewLocalBackend builds an empty in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{collections: make(map[string][]localEntry)}
}

func (b *LocalBackend) EnsureCollection(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		b.collections[name] = nil
	}
	return nil
}

func (b *LocalBackend) Add(ctx context.Context, collection, memoryID, situation, recommendation string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections[collection] = append(b.collections[collection], localEntry{
		id:             memoryID,
		situation:      situation,
		recommendation: recommendation,
		metadata:       metadata,
		timestamp:      time.Now(),
	})
	return nil
}

func (b *LocalBackend) Query(ctx context.Context, collection, query string, k int, threshold float64) ([]Recall, error) {
	b.mu.RLock()
	entries := append([]localEntry(nil), b.collections[collection]...)
	b.mu.RUnlock()

	queryTokens := tokenize(query)

	type scored struct {
		entry localEntry
		score float64
	}
	var candidates []scored
	for _, e := range entries {
		score := jaccard(queryTokens, tokenize(e.situation))
		if score >= threshold {
			candidates = append(candidates, scored{entry: e, score: score})
		}
	}

	// simple selection sort by descending score; collection sizes here are
	// small (per-role memory, not a bulk corpus) so this stays cheap.
	for i := 0; i < len(candidates); i++ {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[best].score {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]
	}

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Recall, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Recall{
			MemoryID:       c.entry.id,
			Situation:      c.entry.situation,
			Recommendation: c.entry.recommendation,
			Similarity:     c.score,
			Metadata:       c.entry.metadata,
			Timestamp:      c.entry.timestamp,
		})
	}
	return out, nil
}

func (b *LocalBackend) Count(ctx context.Context, collection string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.collections[collection]), nil
}

func (b *LocalBackend) DeleteCollection(ctx context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections, collection)
	return nil
}

func tokenize(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
