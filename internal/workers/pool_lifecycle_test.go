package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/store"
)

// contextSourceFunc adapts a function to the ContextSource interface.
type contextSourceFunc func(d *agents.Descriptor) agents.Context

func (f contextSourceFunc) CurrentContext(d *agents.Descriptor) agents.Context {
	return f(d)
}

func TestPool_PauseHoldsQueueResumeDrains(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	id := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)

	time.Sleep(50 * time.Millisecond)
	rec, ok := f.store.Record(id)
	require.True(t, ok)
	assert.Equal(t, store.TaskQueued, rec.Status)

	f.pool.Resume()
	f.waitStatus(t, id, store.TaskCompleted)
}

func TestPool_CancelQueuedTask(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	id := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	require.NoError(t, f.pool.Cancel(id))

	rec, _ := f.store.Record(id)
	assert.Equal(t, store.TaskCancelled, rec.Status)

	f.pool.Resume()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.invoker.invocationOrder())
}

func TestPool_CancelRunningDiscardsLateResult(t *testing.T) {
	f := newPoolFixture(t, Config{})
	release := make(chan struct{})
	f.invoker.setBlock(release)
	f.invoker.setCards("a", "late card")

	id := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 1
	}, waitFor, tick)

	require.NoError(t, f.pool.Cancel(id))
	rec, _ := f.store.Record(id)
	assert.Equal(t, store.TaskCancelled, rec.Status)

	// The slot frees at cancel time; the in-flight call is still blocked.
	assert.Zero(t, f.pool.RunningCount())

	close(release)

	// The late result was discarded: status stays cancelled, nothing persisted.
	require.Eventually(t, func() bool {
		rec, _ := f.store.Record(id)
		return rec.Status == store.TaskCancelled && len(f.store.Items("")) == 0
	}, waitFor, tick)
}

func TestPool_CancelRunningFreesSlotImmediately(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 1})
	release := make(chan struct{})
	f.invoker.setBlock(release)
	f.invoker.setCards("b", "card from b")

	idA := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 1
	}, waitFor, tick)

	idB := f.pool.Submit(testAgent("b", 5), agents.Context{}, -1)
	assert.Equal(t, 1, f.pool.QueueLen())

	// Cancelling the running task hands its slot to the queued one while the
	// cancelled call is still in flight.
	require.NoError(t, f.pool.Cancel(idA))
	require.Eventually(t, func() bool {
		order := f.invoker.invocationOrder()
		return len(order) == 2 && order[1] == "b"
	}, waitFor, tick)

	close(release)
	f.waitStatus(t, idB, store.TaskCompleted)
	rec, _ := f.store.Record(idA)
	assert.Equal(t, store.TaskCancelled, rec.Status)

	items := f.store.Items("")
	require.Len(t, items, 1)
	assert.Equal(t, "card from b", items[0].Content)
}

func TestPool_CancelUnknownTask(t *testing.T) {
	f := newPoolFixture(t, Config{})
	assert.ErrorIs(t, f.pool.Cancel("nope"), ErrTaskNotFound)
}

func TestPool_PauseTaskAndResumeTask(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	id := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	require.NoError(t, f.pool.PauseTask(id))

	rec, _ := f.store.Record(id)
	assert.Equal(t, store.TaskPaused, rec.Status)
	assert.Equal(t, 0, f.pool.QueueLen())

	// A pool-wide resume does not touch individually paused tasks.
	f.pool.Resume()
	time.Sleep(50 * time.Millisecond)
	rec, _ = f.store.Record(id)
	assert.Equal(t, store.TaskPaused, rec.Status)

	require.NoError(t, f.pool.ResumeTask(id))
	f.waitStatus(t, id, store.TaskCompleted)
}

func TestPool_PauseRunningTaskEvicts(t *testing.T) {
	f := newPoolFixture(t, Config{})
	release := make(chan struct{})
	f.invoker.setBlock(release)
	f.invoker.setCards("a", "card")

	id := f.pool.Submit(testAgent("a", 5), agents.Context{}, -1)
	require.Eventually(t, func() bool {
		return f.pool.RunningCount() == 1
	}, waitFor, tick)

	require.NoError(t, f.pool.PauseTask(id))

	// Eviction is immediate; the abandoned call keeps running untouched.
	assert.Zero(t, f.pool.RunningCount())
	rec, _ := f.store.Record(id)
	assert.Equal(t, store.TaskPaused, rec.Status)

	close(release)
	time.Sleep(50 * time.Millisecond)
	rec, _ = f.store.Record(id)
	assert.Equal(t, store.TaskPaused, rec.Status)
	assert.Empty(t, f.store.Items(""))
}

func TestPool_RetryFailedTaskKeepsID(t *testing.T) {
	f := newPoolFixture(t, Config{})
	flaky := testAgent("flaky", 5)
	require.NoError(t, f.reg.Register(flaky))
	f.invoker.setErr("flaky", assert.AnError)

	id := f.pool.Submit(flaky, agents.Context{BatchText: "original batch"}, -1)
	f.waitStatus(t, id, store.TaskFailed)

	f.invoker.setErr("flaky", nil)
	f.invoker.setCards("flaky", "second try card")
	require.NoError(t, f.pool.Retry(id))

	rec := f.waitStatus(t, id, store.TaskCompleted)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Empty(t, rec.Error)

	// One record per external id across the whole lifecycle.
	assert.Len(t, f.store.Records(), 1)

	// Without a ContextSource the original context is not retained: the
	// retried run starts from an empty one.
	contexts := f.invoker.contexts()
	require.Len(t, contexts, 2)
	assert.Equal(t, "original batch", contexts[0].BatchText)
	assert.Empty(t, contexts[1].BatchText)
}

func TestPool_RetryDerivesFreshContext(t *testing.T) {
	log := newTestLogger(t)
	st := store.NewMemoryStore()
	events := busForTest(t, log)
	invoker := newStubInvoker()
	reg := agents.NewRegistry()
	flaky := testAgent("flaky", 5)
	require.NoError(t, reg.Register(flaky))

	source := contextSourceFunc(func(d *agents.Descriptor) agents.Context {
		return agents.Context{SessionID: "s1", BatchText: "fresh state"}
	})
	pool := NewPool(Config{}, reg, invoker, nil, st, events, source, log, nil)
	t.Cleanup(pool.Stop)

	invoker.setErr("flaky", assert.AnError)
	id := pool.Submit(flaky, agents.Context{BatchText: "stale state"}, -1)
	require.Eventually(t, func() bool {
		rec, ok := st.Record(id)
		return ok && rec.Status == store.TaskFailed
	}, waitFor, tick)

	invoker.setErr("flaky", nil)
	require.NoError(t, pool.Retry(id))
	require.Eventually(t, func() bool {
		rec, ok := st.Record(id)
		return ok && rec.Status == store.TaskCompleted
	}, waitFor, tick)

	contexts := invoker.contexts()
	require.Len(t, contexts, 2)
	assert.Equal(t, "stale state", contexts[0].BatchText)
	assert.Equal(t, "fresh state", contexts[1].BatchText)
}

func TestPool_RetryRejectsNonTerminalStates(t *testing.T) {
	f := newPoolFixture(t, Config{})
	agent := testAgent("a", 5)
	require.NoError(t, f.reg.Register(agent))
	f.invoker.setCards("a", "card")

	id := f.pool.Submit(agent, agents.Context{}, -1)
	f.waitStatus(t, id, store.TaskCompleted)

	assert.ErrorIs(t, f.pool.Retry(id), ErrTaskNotRetryable)
	assert.ErrorIs(t, f.pool.Retry("nope"), ErrTaskNotFound)
}

func TestPool_RetryCancelledTask(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()
	agent := testAgent("a", 5)
	require.NoError(t, f.reg.Register(agent))
	f.invoker.setCards("a", "card")

	id := f.pool.Submit(agent, agents.Context{}, -1)
	require.NoError(t, f.pool.Cancel(id))

	f.pool.Resume()
	require.NoError(t, f.pool.Retry(id))
	rec := f.waitStatus(t, id, store.TaskCompleted)
	assert.Equal(t, 1, rec.RetryCount)
}
