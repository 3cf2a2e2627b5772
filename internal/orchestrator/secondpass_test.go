package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/store"
)

func registerDependencyPair(t *testing.T, f *fixture) (*agents.Descriptor, *agents.Descriptor) {
	t.Helper()
	claims := &agents.Descriptor{ID: "claims", Name: "Claims", Priority: 5, Category: "claim"}
	verifier := &agents.Descriptor{
		ID:        "verifier",
		Name:      "Verifier",
		Priority:  6,
		Category:  "verification",
		DependsOn: []string{"claims"},
	}
	require.NoError(t, f.reg.Register(claims))
	require.NoError(t, f.reg.Register(verifier))
	return claims, verifier
}

func addClaims(f *fixture, n int) {
	for i := 0; i < n; i++ {
		f.store.AppendItem(store.Item{
			ID:        fmt.Sprintf("claim-%d-%d", time.Now().UnixNano(), i),
			Category:  "claim",
			Content:   fmt.Sprintf("claim number %d", i),
			CreatedAt: time.Now(),
		})
	}
}

func TestSecondPass_WaitsForDependencyCompletion(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeOff})
	registerDependencyPair(t, f)
	addClaims(f, 3)

	f.orch.CheckSecondPass()
	assert.Empty(t, f.pool.submissions())
}

func TestSecondPass_FirstRunNeedsNoThresholds(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeOff})
	_, verifier := registerDependencyPair(t, f)
	addClaims(f, 2)

	f.orch.mu.Lock()
	f.orch.completed["claims"] = 1
	f.orch.mu.Unlock()

	f.orch.CheckSecondPass()

	subs := f.pool.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, verifier.ID, subs[0].agent.ID)
	assert.Equal(t, verifier.Priority, subs[0].priority)
	assert.True(t, subs[0].ec.SecondPass)
	assert.Contains(t, subs[0].ec.PrimaryInput, "1. claim number 0")
	assert.Contains(t, subs[0].ec.PrimaryInput, "2. claim number 1")
}

func TestSecondPass_TwoThresholdGate(t *testing.T) {
	f := newFixture(t, Config{
		Mode:                  ModeOff,
		SecondPassMinInterval: 60 * time.Second,
		SecondPassMinNewItems: 5,
	})
	registerDependencyPair(t, f)

	f.orch.mu.Lock()
	f.orch.completed["claims"] = 1
	// Interval satisfied, volume not: 3 new items since the last run.
	f.orch.history["verifier"] = secondPassHistory{
		lastRunAt:      time.Now().Add(-61 * time.Second),
		itemCountAtRun: 0,
	}
	f.orch.mu.Unlock()

	addClaims(f, 3)
	f.orch.CheckSecondPass()
	assert.Empty(t, f.pool.submissions())

	// Volume satisfied, interval not.
	f.orch.mu.Lock()
	f.orch.history["verifier"] = secondPassHistory{
		lastRunAt:      time.Now().Add(-30 * time.Second),
		itemCountAtRun: 0,
	}
	f.orch.mu.Unlock()

	addClaims(f, 2)
	f.orch.CheckSecondPass()
	assert.Empty(t, f.pool.submissions())

	// Both thresholds satisfied: 5 new items, 61 elapsed seconds.
	f.orch.mu.Lock()
	f.orch.history["verifier"] = secondPassHistory{
		lastRunAt:      time.Now().Add(-61 * time.Second),
		itemCountAtRun: 0,
	}
	f.orch.mu.Unlock()

	f.orch.CheckSecondPass()
	require.Len(t, f.pool.submissions(), 1)
}

func TestSecondPass_HistoryUpdatedOnSubmit(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeOff, SecondPassMinInterval: time.Hour})
	registerDependencyPair(t, f)
	addClaims(f, 2)

	f.orch.mu.Lock()
	f.orch.completed["claims"] = 1
	f.orch.mu.Unlock()

	f.orch.CheckSecondPass()
	require.Len(t, f.pool.submissions(), 1)

	f.orch.mu.Lock()
	h, ok := f.orch.history["verifier"]
	f.orch.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 2, h.itemCountAtRun)
	assert.WithinDuration(t, time.Now(), h.lastRunAt, time.Second)

	// Immediately re-checking submits nothing: the interval gate holds no
	// matter how many completion events fire.
	addClaims(f, 10)
	f.orch.CheckSecondPass()
	assert.Len(t, f.pool.submissions(), 1)
}

func TestSecondPass_TriggeredByCompletionEvent(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeOff})
	_, verifier := registerDependencyPair(t, f)
	addClaims(f, 1)
	require.NoError(t, f.orch.Start())

	event := bus.NewEvent(bus.EventTaskCompleted)
	event.SessionID = "s1"
	event.TaskID = "t1"
	event.AgentID = "claims"
	f.events.Publish(event)

	require.Eventually(t, func() bool {
		subs := f.pool.submissions()
		return len(subs) == 1 && subs[0].agent.ID == verifier.ID
	}, waitFor, tick)
}

func TestSecondPass_MultipleDependenciesAllRequired(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeOff})
	claims := &agents.Descriptor{ID: "claims", Name: "Claims", Priority: 5, Category: "claim"}
	risks := &agents.Descriptor{ID: "risks", Name: "Risks", Priority: 5, Category: "risk"}
	digest := &agents.Descriptor{
		ID:        "digest",
		Name:      "Digest",
		Priority:  4,
		Category:  "digest",
		DependsOn: []string{"claims", "risks"},
	}
	require.NoError(t, f.reg.Register(claims))
	require.NoError(t, f.reg.Register(risks))
	require.NoError(t, f.reg.Register(digest))

	f.orch.mu.Lock()
	f.orch.completed["claims"] = 1
	f.orch.mu.Unlock()

	f.orch.CheckSecondPass()
	assert.Empty(t, f.pool.submissions())

	f.orch.mu.Lock()
	f.orch.completed["risks"] = 1
	f.orch.mu.Unlock()

	f.orch.CheckSecondPass()
	assert.Len(t, f.pool.submissions(), 1)
}
