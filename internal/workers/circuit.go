package workers

import (
	"sync/atomic"
)

// agentCircuit is the per-agent circuit breaker. Consecutive failures trip
// it; once open it stays open until a manual reset, there is no timed
// half-open recovery.
type agentCircuit struct {
	failures  atomic.Int32
	open      atomic.Bool
	threshold int32
}

func newAgentCircuit(threshold int) *agentCircuit {
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}
	return &agentCircuit{threshold: int32(threshold)}
}

// recordFailure counts one failure and reports whether this failure tripped
// the breaker open.
func (c *agentCircuit) recordFailure() bool {
	if c.failures.Add(1) >= c.threshold {
		return c.open.CompareAndSwap(false, true)
	}
	return false
}

// recordSuccess resets the consecutive-failure counter. It does not close an
// open breaker.
func (c *agentCircuit) recordSuccess() {
	c.failures.Store(0)
}

// reset closes the breaker and clears the counter. Manual re-enable only.
func (c *agentCircuit) reset() {
	c.failures.Store(0)
	c.open.Store(false)
}

func (c *agentCircuit) isOpen() bool {
	return c.open.Load()
}
