// Package memory gives each agent role a per-role collection of past
// situation/recommendation pairs it can recall by similarity. The vector
// backend doing the actual embedding and nearest-neighbor search is a black
// box behind the Backend interface; this package only owns collection
// bookkeeping and the recall shape agents consume.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default per-role collections, matching the reference agent roster.
const (
	CollectionBull            = "bull_memory"
	CollectionBear            = "bear_memory"
	CollectionTrader          = "trader_memory"
	CollectionRiskManager     = "risk_manager_memory"
	CollectionResearchManager = "research_manager_memory"
	CollectionFundamentals    = "fundamentals_memory"
	CollectionTechnical       = "technical_memory"
)

// DefaultCollections lists every collection created at startup.
var DefaultCollections = []string{
	CollectionBull, CollectionBear, CollectionTrader, CollectionRiskManager,
	CollectionResearchManager, CollectionFundamentals, CollectionTechnical,
}

// Recall is one memory returned by a similarity query, ranked by Similarity
// descending.
type Recall struct {
	MemoryID       string            `json:"memory_id"`
	Situation      string            `json:"situation"`
	Recommendation string            `json:"recommendation"`
	Similarity     float64           `json:"similarity"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Backend is the vector store doing the actual embedding and nearest
// neighbor search for one collection. A real deployment backs this with a
// vector database; Store only orchestrates collection lifecycle on top of it.
type Backend interface {
	EnsureCollection(ctx context.Context, name string) error
	Add(ctx context.Context, collection, memoryID, situation, recommendation string, metadata map[string]string) error
	Query(ctx context.Context, collection, query string, k int, threshold float64) ([]Recall, error)
	Count(ctx context.Context, collection string) (int, error)
	DeleteCollection(ctx context.Context, collection string) error
}

// Store is the per-role memory façade every agent node reads and writes
// through. It tracks which collections have been created with a sync.Map so
// concurrent first-use from different agent goroutines only provisions a
// collection once.
type Store struct {
	backend Backend
	known   sync.Map // collection name -> struct{}
}

// New wraps a Backend and pre-provisions the default role collections.
func New(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{backend: backend}
	for _, name := range DefaultCollections {
		if err := s.ensure(ctx, name); err != nil {
			return nil, fmt.Errorf("provisioning collection %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *Store) ensure(ctx context.Context, collection string) error {
	if _, ok := s.known.Load(collection); ok {
		return nil
	}
	if err := s.backend.EnsureCollection(ctx, collection); err != nil {
		return err
	}
	s.known.Store(collection, struct{}{})
	return nil
}

// Add records a new situation/recommendation pair, creating the collection
// on first use if it wasn't one of the defaults.
func (s *Store) Add(ctx context.Context, collection, situation, recommendation string, metadata map[string]string) (string, error) {
	if err := s.ensure(ctx, collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.backend.Add(ctx, collection, id, situation, recommendation, metadata); err != nil {
		return "", fmt.Errorf("adding memory to %s: %w", collection, err)
	}
	return id, nil
}

// Query runs a similarity search over a collection. An unknown collection
// returns an empty result rather than an error, matching the reference
// manager's "collection not found, return []" behavior.
func (s *Store) Query(ctx context.Context, collection, text string, k int, threshold float64) ([]Recall, error) {
	if _, ok := s.known.Load(collection); !ok {
		return nil, nil
	}
	return s.backend.Query(ctx, collection, text, k, threshold)
}

// GetMemories is the zero-threshold, n-match convenience wrapper agent
// nodes call to recall similar past situations.
func (s *Store) GetMemories(ctx context.Context, collection, currentSituation string, nMatches int) ([]Recall, error) {
	return s.Query(ctx, collection, currentSituation, nMatches, 0)
}

// CollectionStats reports a collection's live entry count.
type CollectionStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats returns the entry count for a known collection.
func (s *Store) Stats(ctx context.Context, collection string) (CollectionStats, error) {
	if _, ok := s.known.Load(collection); !ok {
		return CollectionStats{}, fmt.Errorf("collection %s does not exist", collection)
	}
	count, err := s.backend.Count(ctx, collection)
	if err != nil {
		return CollectionStats{}, err
	}
	return CollectionStats{Name: collection, Count: count}, nil
}

// ListCollections returns every collection name currently provisioned.
func (s *Store) ListCollections() []string {
	var names []string
	s.known.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// DeleteCollection drops a collection from both the backend and the local cache.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if err := s.backend.DeleteCollection(ctx, collection); err != nil {
		return err
	}
	s.known.Delete(collection)
	return nil
}
