package balancer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectReturnsErrNoHealthyInstanceWhenEmpty(t *testing.T) {
	b := New(StrategyRoundRobin, zerolog.Nop())
	_, err := b.Select()
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}

func TestSelectSkipsUnhealthyInstances(t *testing.T) {
	b := New(StrategyRoundRobin, zerolog.Nop())
	b.AddInstance("a", "localhost", 8001, 1)
	b.AddInstance("b", "localhost", 8002, 1)
	b.SetHealthy("b", true)

	inst, err := b.Select()
	require.NoError(t, err)
	assert.Equal(t, "b", inst.ID)
}

func TestRoundRobinCyclesThroughInstances(t *testing.T) {
	b := New(StrategyRoundRobin, zerolog.Nop())
	b.AddInstance("a", "localhost", 8001, 1)
	b.AddInstance("b", "localhost", 8002, 1)
	b.SetHealthy("a", true)
	b.SetHealthy("b", true)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		inst, err := b.Select()
		require.NoError(t, err)
		seen[inst.ID]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
}

func TestLeastConnectionsPicksInstanceWithFewerActiveRequests(t *testing.T) {
	b := New(StrategyLeastConnections, zerolog.Nop())
	b.AddInstance("busy", "localhost", 8001, 1)
	b.AddInstance("idle", "localhost", 8002, 1)
	b.SetHealthy("busy", true)
	b.SetHealthy("idle", true)

	b.instances["busy"].recordStart()

	inst, err := b.Select()
	require.NoError(t, err)
	assert.Equal(t, "idle", inst.ID)
}

func TestHealthAwarePrefersInstanceWithBetterScore(t *testing.T) {
	b := New(StrategyHealthAware, zerolog.Nop())
	b.AddInstance("slow", "localhost", 8001, 1)
	b.AddInstance("fast", "localhost", 8002, 1)
	b.SetHealthy("slow", true)
	b.SetHealthy("fast", true)

	b.instances["slow"].SetResourceUsage(90, 90)
	b.instances["fast"].SetResourceUsage(5, 5)

	inst, err := b.Select()
	require.NoError(t, err)
	assert.Equal(t, "fast", inst.ID)
}

func TestTrackRecordsFailureOnInstance(t *testing.T) {
	b := New(StrategyRoundRobin, zerolog.Nop())
	b.AddInstance("a", "localhost", 8001, 1)
	b.SetHealthy("a", true)

	err := b.Track(func(inst *Instance) error {
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0.0, b.instances["a"].SuccessRate())
}

func TestStartHealthChecksMarksInstanceHealthy(t *testing.T) {
	b := New(StrategyRoundRobin, zerolog.Nop())
	b.AddInstance("a", "localhost", 8001, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	b.StartHealthChecks(ctx, func(ctx context.Context, inst *Instance) bool {
		close(done)
		return true
	})
	defer b.StopHealthChecks()

	// directly exercise the check path the loop would take, since the
	// loop's own tick is 30s and this test should stay fast.
	b.runHealthChecks(ctx)
	<-done
	assert.True(t, b.instances["a"].IsHealthy())
}
