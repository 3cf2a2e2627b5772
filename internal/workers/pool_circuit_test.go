package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/store"
)

func failOnce(t *testing.T, f *poolFixture, agent *agents.Descriptor) {
	t.Helper()
	id := f.pool.Submit(agent, agents.Context{}, -1)
	f.waitStatus(t, id, store.TaskFailed)
}

func TestCircuit_TripsAfterConsecutiveFailures(t *testing.T) {
	f := newPoolFixture(t, Config{CircuitThreshold: 3})
	sub := f.events.Subscribe()
	defer f.events.Unsubscribe(sub)

	flaky := testAgent("flaky", 5)
	f.invoker.setErr("flaky", assert.AnError)

	failOnce(t, f, flaky)
	failOnce(t, f, flaky)
	assert.False(t, f.pool.AgentDisabled("flaky"))

	failOnce(t, f, flaky)
	assert.True(t, f.pool.AgentDisabled("flaky"))

	require.Eventually(t, func() bool {
		for {
			select {
			case event := <-sub.Ch():
				if event.Type == bus.EventAgentDisabled && event.AgentID == "flaky" {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)
}

func TestCircuit_SuccessResetsFailureStreak(t *testing.T) {
	f := newPoolFixture(t, Config{CircuitThreshold: 3})
	flaky := testAgent("flaky", 5)

	f.invoker.setErr("flaky", assert.AnError)
	failOnce(t, f, flaky)
	failOnce(t, f, flaky)

	f.invoker.setErr("flaky", nil)
	id := f.pool.Submit(flaky, agents.Context{}, -1)
	f.waitStatus(t, id, store.TaskCompleted)

	// The streak starts over: two more failures do not trip a threshold of 3.
	f.invoker.setErr("flaky", assert.AnError)
	failOnce(t, f, flaky)
	failOnce(t, f, flaky)
	assert.False(t, f.pool.AgentDisabled("flaky"))

	failOnce(t, f, flaky)
	assert.True(t, f.pool.AgentDisabled("flaky"))
}

func TestCircuit_ManualEnableOnly(t *testing.T) {
	f := newPoolFixture(t, Config{CircuitThreshold: 2})
	flaky := testAgent("flaky", 5)
	f.invoker.setErr("flaky", assert.AnError)

	failOnce(t, f, flaky)
	failOnce(t, f, flaky)
	require.True(t, f.pool.AgentDisabled("flaky"))

	// A later success on a directly submitted task does not close the breaker.
	f.invoker.setErr("flaky", nil)
	id := f.pool.Submit(flaky, agents.Context{}, -1)
	f.waitStatus(t, id, store.TaskCompleted)
	assert.True(t, f.pool.AgentDisabled("flaky"))

	f.pool.EnableAgent("flaky")
	assert.False(t, f.pool.AgentDisabled("flaky"))
}

func TestCircuit_IndependentPerAgent(t *testing.T) {
	f := newPoolFixture(t, Config{CircuitThreshold: 2})
	flaky := testAgent("flaky", 5)
	_ = testAgent("steady", 5)
	f.invoker.setErr("flaky", assert.AnError)

	failOnce(t, f, flaky)
	failOnce(t, f, flaky)

	assert.True(t, f.pool.AgentDisabled("flaky"))
	assert.False(t, f.pool.AgentDisabled("steady"))
}
