package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
)

func TestPool_DispatchOrderByPriorityThenAge(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 1})
	f.pool.Pause()

	low := testAgent("low", 2)
	high := testAgent("high", 8)
	mid := testAgent("mid", 5)
	mid2 := testAgent("mid2", 5)

	f.pool.Submit(low, agents.Context{}, -1)
	f.pool.Submit(mid, agents.Context{}, -1)
	f.pool.Submit(high, agents.Context{}, -1)
	f.pool.Submit(mid2, agents.Context{}, -1)

	f.pool.Resume()

	require.Eventually(t, func() bool {
		return len(f.invoker.invocationOrder()) == 4
	}, waitFor, tick)

	assert.Equal(t, []string{"high", "mid", "mid2", "low"}, f.invoker.invocationOrder())
}

func TestPool_ConcurrencyLimitHolds(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 2})
	release := make(chan struct{})
	f.invoker.setBlock(release)

	for i := 0; i < 5; i++ {
		f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	}

	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 2
	}, waitFor, tick)
	assert.Equal(t, 3, f.pool.QueueLen())

	// The limit holds while tasks are blocked.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.pool.RunningCount())

	close(release)
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 0 && f.pool.QueueLen() == 0
	}, waitFor, tick)
}

func TestPool_SetConcurrencyClamps(t *testing.T) {
	f := newPoolFixture(t, Config{})

	f.pool.SetConcurrency(0)
	assert.Equal(t, MinConcurrency, f.pool.Concurrency())

	f.pool.SetConcurrency(-3)
	assert.Equal(t, MinConcurrency, f.pool.Concurrency())

	f.pool.SetConcurrency(50)
	assert.Equal(t, MaxConcurrency, f.pool.Concurrency())

	f.pool.SetConcurrency(7)
	assert.Equal(t, 7, f.pool.Concurrency())
}

func TestPool_RaisingConcurrencyDispatchesWaitingTasks(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 1})
	release := make(chan struct{})
	defer close(release)
	f.invoker.setBlock(release)

	f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	f.pool.Submit(testAgent("b", 5), agents.Context{}, -1)

	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 1 && f.pool.QueueLen() == 1
	}, waitFor, tick)

	f.pool.SetConcurrency(2)
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 2
	}, waitFor, tick)
}

func TestPool_LoweringConcurrencyNeverPreempts(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 3})
	release := make(chan struct{})
	defer close(release)
	f.invoker.setBlock(release)

	for i := 0; i < 3; i++ {
		f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	}
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 3
	}, waitFor, tick)

	f.pool.SetConcurrency(1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, f.pool.RunningCount())
}
