package cache

import (
	"testing"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	durable := NewDurable(db)
	job := NewCleanupJob(durable, zerolog.Nop())

	now := time.Now()
	require.NoError(t, durable.Store(domain.CategoryPrice, "EXPIRED", "src", map[string]any{}, now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, durable.Store(domain.CategoryPrice, "FRESH", "src", map[string]any{}, now, now.Add(time.Hour)))

	job.Run()

	row, err := durable.Get(domain.CategoryPrice, "EXPIRED")
	require.NoError(t, err)
	assert.Nil(t, row)

	row, err = durable.Get(domain.CategoryPrice, "FRESH")
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestCleanupJobRunEmpty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	durable := NewDurable(db)
	job := NewCleanupJob(durable, zerolog.Nop())

	assert.NotPanics(t, func() { job.Run() })
}
