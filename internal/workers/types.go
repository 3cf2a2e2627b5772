package workers

import (
	"errors"
	"time"

	"github.com/boardkit/dispatch/internal/agents"
)

// Concurrency bounds and defaults for the pool.
const (
	MinConcurrency     = 1
	MaxConcurrency     = 20
	DefaultConcurrency = 3

	// DefaultBacklogThreshold is the queue length above which low-priority
	// agents are skipped at submission.
	DefaultBacklogThreshold = 10

	// CongestionPriorityFloor is the priority below which agents are skipped
	// while the queue is congested.
	CongestionPriorityFloor = 4

	// DefaultCircuitThreshold is the consecutive-failure count that disables
	// an agent.
	DefaultCircuitThreshold = 3

	// previewLen caps the result preview stored on task records.
	previewLen = 140
)

var (
	// ErrTaskNotFound is returned for ids the pool has no live task or
	// retryable record for.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotRetryable is returned when Retry targets a task that is not
	// failed, cancelled, or paused.
	ErrTaskNotRetryable = errors.New("task is not retryable")
	// ErrAgentUnknown is returned when a task's agent is no longer registered.
	ErrAgentUnknown = errors.New("agent not registered")
)

// Task is one queued unit of agent work. The id is stable across the task's
// whole lifecycle, including retries.
type Task struct {
	ID         string
	Agent      *agents.Descriptor
	Ctx        agents.Context
	Priority   int
	CreatedAt  time.Time
	RetryCount int
}

// ContextSource re-derives an execution context from current session state.
// Retry uses it so a retried task sees the session as it is now, not as it
// was at first submission.
type ContextSource interface {
	CurrentContext(d *agents.Descriptor) agents.Context
}

// matchesRelevance reports whether an agent's topic set intersects the
// batch tags. An agent with no topics matches every batch.
func matchesRelevance(tags, topics []string) bool {
	if len(topics) == 0 {
		return true
	}
	for _, topic := range topics {
		for _, tag := range tags {
			if topic == tag {
				return true
			}
		}
	}
	return false
}
