package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/store"
)

func TestSubmitAll_SubmitsEligibleAgents(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	require.NoError(t, f.reg.Register(testAgent("a", 5)))
	require.NoError(t, f.reg.Register(testAgent("b", 5)))

	ids := f.pool.SubmitAll(agents.Context{SessionID: "s1", BatchText: "batch"})
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, f.pool.QueueLen())
}

func TestSubmitAll_SkipsSecondPassAgents(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	require.NoError(t, f.reg.Register(testAgent("first", 5)))
	second := testAgent("second", 5)
	second.DependsOn = []string{"first"}
	require.NoError(t, f.reg.Register(second))

	ids := f.pool.SubmitAll(agents.Context{})
	require.Len(t, ids, 1)
	rec, ok := f.store.Record(ids[0])
	require.True(t, ok)
	assert.Equal(t, "first", rec.AgentID)
}

func TestSubmitAll_HonorsActivationPredicate(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	gated := testAgent("gated", 5)
	gated.Activation = func(ec agents.Context) bool { return ec.Phase == agents.PhaseLate }
	require.NoError(t, f.reg.Register(gated))

	assert.Empty(t, f.pool.SubmitAll(agents.Context{Phase: agents.PhaseEarly}))
	assert.Len(t, f.pool.SubmitAll(agents.Context{Phase: agents.PhaseLate}), 1)
}

func TestSubmitAll_HonorsAllowList(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	require.NoError(t, f.reg.Register(testAgent("a", 5)))
	require.NoError(t, f.reg.Register(testAgent("b", 5)))

	f.pool.SetAllowList([]string{"b"})
	ids := f.pool.SubmitAll(agents.Context{})
	require.Len(t, ids, 1)
	rec, _ := f.store.Record(ids[0])
	assert.Equal(t, "b", rec.AgentID)

	f.pool.SetAllowList(nil)
	assert.Len(t, f.pool.SubmitAll(agents.Context{}), 2)
}

func TestSubmitAll_CongestionSkipsLowPriority(t *testing.T) {
	f := newPoolFixture(t, Config{BacklogThreshold: 2})
	f.pool.Pause()

	urgent := testAgent("urgent", 7)
	casual := testAgent("casual", 2)
	require.NoError(t, f.reg.Register(urgent))
	require.NoError(t, f.reg.Register(casual))

	// Fill the queue over the backlog threshold.
	for i := 0; i < 3; i++ {
		f.pool.Submit(urgent, agents.Context{}, -1)
	}
	require.Equal(t, 3, f.pool.QueueLen())

	ids := f.pool.SubmitAll(agents.Context{})
	require.Len(t, ids, 1)
	rec, _ := f.store.Record(ids[0])
	assert.Equal(t, "urgent", rec.AgentID)
}

func TestSubmitAll_RelevanceTopicIntersection(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()

	actionOnly := testAgent("action-only", 5)
	actionOnly.Topics = []string{"action"}
	anything := testAgent("anything", 5)
	require.NoError(t, f.reg.Register(actionOnly))
	require.NoError(t, f.reg.Register(anything))

	ids := f.pool.SubmitAll(agents.Context{Tags: []string{"general", "claim"}})
	require.Len(t, ids, 1)
	rec, _ := f.store.Record(ids[0])
	assert.Equal(t, "anything", rec.AgentID)

	ids = f.pool.SubmitAll(agents.Context{Tags: []string{"general", "action"}})
	assert.Len(t, ids, 2)
}

func TestSubmitAll_SkipsDisabledAgent(t *testing.T) {
	f := newPoolFixture(t, Config{CircuitThreshold: 3})
	require.NoError(t, f.reg.Register(testAgent("flaky", 5)))
	f.invoker.setErr("flaky", assert.AnError)

	for i := 0; i < 3; i++ {
		id := f.pool.Submit(testAgent("flaky", 5), agents.Context{}, -1)
		f.waitStatus(t, id, store.TaskFailed)
	}
	require.True(t, f.pool.AgentDisabled("flaky"))

	assert.Empty(t, f.pool.SubmitAll(agents.Context{}))

	f.pool.EnableAgent("flaky")
	f.pool.Pause()
	assert.Len(t, f.pool.SubmitAll(agents.Context{}), 1)
}

func TestMatchesRelevance(t *testing.T) {
	assert.True(t, matchesRelevance([]string{"general"}, nil))
	assert.True(t, matchesRelevance(nil, nil))
	assert.True(t, matchesRelevance([]string{"general", "risk"}, []string{"risk"}))
	assert.False(t, matchesRelevance([]string{"general"}, []string{"risk"}))
	assert.False(t, matchesRelevance(nil, []string{"risk"}))
}
