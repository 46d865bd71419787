package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvisionsDefaultCollections(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	names := s.ListCollections()
	assert.ElementsMatch(t, DefaultCollections, names)
}

func TestAddAndQueryRoundTrip(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	id, err := s.Add(context.Background(), CollectionBull, "AAPL breaking out above resistance with volume", "BUY, high confidence", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	recalls, err := s.GetMemories(context.Background(), CollectionBull, "AAPL breaking above resistance", 3)
	require.NoError(t, err)
	require.Len(t, recalls, 1)
	assert.Equal(t, "BUY, high confidence", recalls[0].Recommendation)
	assert.Greater(t, recalls[0].Similarity, 0.0)
}

func TestQueryUnknownCollectionReturnsEmpty(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	recalls, err := s.Query(context.Background(), "nonexistent_memory", "anything", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, recalls)
}

func TestAddToNewCollectionProvisionsOnFirstUse(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	_, err = s.Add(context.Background(), "custom_memory", "situation", "recommendation", nil)
	require.NoError(t, err)
	assert.Contains(t, s.ListCollections(), "custom_memory")
}

func TestStatsReturnsCount(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	_, err = s.Add(context.Background(), CollectionTrader, "situation one", "HOLD", nil)
	require.NoError(t, err)
	_, err = s.Add(context.Background(), CollectionTrader, "situation two", "SELL", nil)
	require.NoError(t, err)

	stats, err := s.Stats(context.Background(), CollectionTrader)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
}

func TestDeleteCollectionRemovesFromCache(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	require.NoError(t, s.DeleteCollection(context.Background(), CollectionBear))
	assert.NotContains(t, s.ListCollections(), CollectionBear)
}

func TestQueryRespectsSimilarityThreshold(t *testing.T) {
	s, err := New(context.Background(), NewLocalBackend())
	require.NoError(t, err)

	_, err = s.Add(context.Background(), CollectionFundamentals, "strong revenue growth and low debt", "BUY", nil)
	require.NoError(t, err)

	recalls, err := s.Query(context.Background(), CollectionFundamentals, "completely unrelated text about weather", 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, recalls)
}
