// Package workers provides the priority worker pool that executes agent
// tasks. One logical queue ordered by priority then submission time feeds a
// bounded set of concurrent executions; running tasks are never preempted.
// Per-agent circuit breakers disable agents after repeated failures.
package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/dedup"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/store"
)

// Config holds pool tuning knobs.
type Config struct {
	// Concurrency is the maximum number of tasks executing at once,
	// clamped to [MinConcurrency, MaxConcurrency].
	Concurrency int
	// BacklogThreshold is the queue length above which low-priority agents
	// are skipped at submission.
	BacklogThreshold int
	// CircuitThreshold is the consecutive-failure count that disables an
	// agent until manual re-enable.
	CircuitThreshold int

	// DedupThreshold is the suppression similarity for agents without their
	// own override. DedupMinScore and DedupTopK tune the advisory pre-call
	// lookup. Zero values use the dedup package defaults.
	DedupThreshold float64
	DedupMinScore  float64
	DedupTopK      int
}

// runningTask tracks one executing task. discard is set when the task is
// cancelled or paused mid-flight: the execution goroutine then drops its
// result instead of recording a terminal status.
type runningTask struct {
	task    *Task
	ctx     context.Context
	cancel  context.CancelFunc
	discard bool
}

// Pool is the agent task scheduler.
type Pool struct {
	mu      sync.Mutex
	queue   []*Task
	running map[string]*runningTask
	parked  map[string]*Task // paused tasks by id
	closed  bool
	frozen  bool // Pause() stops dispatch, running tasks finish

	concurrency      int
	backlogThreshold int
	circuitThreshold int
	circuits         map[string]*agentCircuit
	allowed          map[string]struct{} // nil means every agent is allowed
	dedupThreshold   float64
	dedupMinScore    float64
	dedupTopK        int

	registry *agents.Registry
	invoker  agents.Invoker
	gate     *dedup.Gate
	store    store.Store
	events   *bus.EventBus
	source   ContextSource
	logger   *logger.Logger
	metrics  *Metrics

	wg sync.WaitGroup
}

// NewPool creates a worker pool. source may be nil: Retry then reuses a
// parked task's captured context, and retries a terminal task with an empty
// one. metrics may be nil.
func NewPool(cfg Config, registry *agents.Registry, invoker agents.Invoker, gate *dedup.Gate, st store.Store, events *bus.EventBus, source ContextSource, log *logger.Logger, metrics *Metrics) *Pool {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BacklogThreshold <= 0 {
		cfg.BacklogThreshold = DefaultBacklogThreshold
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = DefaultCircuitThreshold
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = dedup.DefaultThreshold
	}
	if cfg.DedupMinScore <= 0 {
		cfg.DedupMinScore = dedup.DefaultMinScore
	}
	if cfg.DedupTopK <= 0 {
		cfg.DedupTopK = dedup.DefaultTopK
	}
	return &Pool{
		running:          make(map[string]*runningTask),
		parked:           make(map[string]*Task),
		concurrency:      clampConcurrency(cfg.Concurrency),
		backlogThreshold: cfg.BacklogThreshold,
		circuitThreshold: cfg.CircuitThreshold,
		circuits:         make(map[string]*agentCircuit),
		dedupThreshold:   cfg.DedupThreshold,
		dedupMinScore:    cfg.DedupMinScore,
		dedupTopK:        cfg.DedupTopK,
		registry:         registry,
		invoker:          invoker,
		gate:             gate,
		store:            st,
		events:           events,
		source:           source,
		logger:           log,
		metrics:          metrics,
	}
}

func clampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// SetConcurrency changes the execution limit, clamped to
// [MinConcurrency, MaxConcurrency]. Raising it dispatches immediately;
// lowering it never interrupts running tasks, the pool just stops filling
// slots until the running count drains below the new limit.
func (p *Pool) SetConcurrency(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.concurrency = clampConcurrency(n)
	p.dispatchLocked()
}

// Concurrency returns the current execution limit.
func (p *Pool) Concurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.concurrency
}

// SetAllowList restricts SubmitAll to the given agent ids. Empty restores
// the default of every registered agent.
func (p *Pool) SetAllowList(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ids) == 0 {
		p.allowed = nil
		return
	}
	p.allowed = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		p.allowed[id] = struct{}{}
	}
}

// Pause stops dispatching queued tasks. Running tasks finish normally.
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = true
	p.logger.Info("pool paused")
}

// Resume restarts dispatch.
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = false
	p.logger.Info("pool resumed")
	p.dispatchLocked()
}

// QueueLen returns the number of queued tasks.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// RunningCount returns the number of executing tasks.
func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// AgentDisabled reports whether the agent's circuit breaker is open.
func (p *Pool) AgentDisabled(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.circuitLocked(agentID).isOpen()
}

// EnableAgent closes the agent's circuit breaker and clears its failure
// count. This is the only way a disabled agent comes back.
func (p *Pool) EnableAgent(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.circuitLocked(agentID).reset()
	p.logger.Info("agent re-enabled",
		logger.Field{Key: "agent_id", Value: agentID})
}

func (p *Pool) circuitLocked(agentID string) *agentCircuit {
	c, ok := p.circuits[agentID]
	if !ok {
		c = newAgentCircuit(p.circuitThreshold)
		p.circuits[agentID] = c
	}
	return c
}

// Submit queues one task for the agent. priority < 0 uses the agent's own
// priority. Returns the task id.
func (p *Pool) Submit(d *agents.Descriptor, ec agents.Context, priority int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitLocked(d, ec, priority, 0, "")
}

// submitLocked creates the task, its queued record, and dispatches. A
// non-empty taskID reuses an existing id (retry path).
func (p *Pool) submitLocked(d *agents.Descriptor, ec agents.Context, priority, retryCount int, taskID string) string {
	if priority < 0 {
		priority = d.Priority
	}

	task := &Task{
		ID:         taskID,
		Agent:      d,
		Ctx:        ec,
		Priority:   priority,
		CreatedAt:  time.Now(),
		RetryCount: retryCount,
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	if retryCount == 0 {
		p.store.AppendRecord(store.TaskRecord{
			TaskID:    task.ID,
			AgentID:   d.ID,
			Status:    store.TaskQueued,
			Priority:  priority,
			CreatedAt: task.CreatedAt,
			UpdatedAt: task.CreatedAt,
		})
	}

	p.queue = append(p.queue, task)
	p.sortQueueLocked()
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.queue))
	}

	p.logger.Debug("task queued",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "agent_id", Value: d.ID},
		logger.Field{Key: "priority", Value: priority})

	p.publish(bus.EventTaskSubmitted, ec.SessionID, task.ID, d.ID, nil)

	p.dispatchLocked()
	return task.ID
}

// SubmitAll queues a task for every eligible first-pass agent. Eligibility
// checks run in order: circuit breaker, activation predicate, session
// allow-list, congestion, relevance-tag match. Second-pass agents are the
// dependency scheduler's job and are never submitted here.
func (p *Pool) SubmitAll(ec agents.Context) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, d := range p.registry.All() {
		if d.SecondPass() {
			continue
		}
		if p.circuitLocked(d.ID).isOpen() {
			p.logger.Debug("skip: agent disabled",
				logger.Field{Key: "agent_id", Value: d.ID})
			continue
		}
		if !d.Active(ec) {
			continue
		}
		if p.allowed != nil {
			if _, ok := p.allowed[d.ID]; !ok {
				continue
			}
		}
		if p.isCongested(len(p.queue)) && d.Priority < CongestionPriorityFloor {
			p.logger.Debug("skip: queue congested",
				logger.Field{Key: "agent_id", Value: d.ID},
				logger.Field{Key: "queue_len", Value: len(p.queue)})
			continue
		}
		if !matchesRelevance(ec.Tags, d.Topics) {
			continue
		}
		ids = append(ids, p.submitLocked(d, ec, d.Priority, 0, ""))
	}
	return ids
}

// isCongested reports whether the queue is over the backlog threshold.
func (p *Pool) isCongested(queueLen int) bool {
	return queueLen > p.backlogThreshold
}

// sortQueueLocked orders the queue by priority descending, then submission
// time ascending.
func (p *Pool) sortQueueLocked() {
	sort.SliceStable(p.queue, func(i, j int) bool {
		if p.queue[i].Priority != p.queue[j].Priority {
			return p.queue[i].Priority > p.queue[j].Priority
		}
		return p.queue[i].CreatedAt.Before(p.queue[j].CreatedAt)
	})
}

// dispatchLocked fills free execution slots from the head of the queue.
func (p *Pool) dispatchLocked() {
	for !p.frozen && !p.closed && len(p.running) < p.concurrency && len(p.queue) > 0 {
		task := p.queue[0]
		p.queue = p.queue[1:]

		ctx, cancel := context.WithCancel(context.Background())
		rt := &runningTask{task: task, ctx: ctx, cancel: cancel}
		p.running[task.ID] = rt

		now := time.Now()
		_ = p.store.UpdateRecord(task.ID, func(rec *store.TaskRecord) {
			rec.Status = store.TaskRunning
			rec.UpdatedAt = now
		})

		p.publish(bus.EventTaskStarted, task.Ctx.SessionID, task.ID, task.Agent.ID, nil)

		if p.metrics != nil {
			p.metrics.SetQueueDepth(len(p.queue))
			p.metrics.SetRunning(len(p.running))
		}

		p.wg.Add(1)
		go p.run(rt)
	}
}

// run executes one task to a terminal status.
func (p *Pool) run(rt *runningTask) {
	defer p.wg.Done()
	defer rt.cancel()

	task := rt.task
	d := task.Agent
	ec := task.Ctx
	start := time.Now()

	// Advisory lookup: surface near-topic existing cards so first-pass
	// transcript agents avoid restating them. Permissive threshold, never
	// a filter.
	if !ec.SecondPass && d.ReactsToTranscript && p.gate != nil {
		similar := p.gate.FindSimilarExisting(rt.ctx, ec.BatchText, d.Category, p.dedupTopK, p.dedupMinScore)
		for _, s := range similar {
			ec.SimilarHints = append(ec.SimilarHints, s.Item.Content)
		}
	}

	candidates, err := p.invoker.Invoke(rt.ctx, d, ec)
	if err != nil {
		p.finishFailed(rt, err, time.Since(start))
		return
	}

	kept := candidates
	if p.gate != nil {
		kept = p.gate.Deduplicate(rt.ctx, candidates, d.Category, d.Threshold(p.dedupThreshold))
	}

	p.finishCompleted(rt, kept, time.Since(start))
}

// finishFailed records a failed task and counts the circuit failure.
// A task whose result was already discarded (cancel or pause mid-flight)
// keeps its recorded status and does not touch the breaker.
func (p *Pool) finishFailed(rt *runningTask, taskErr error, duration time.Duration) {
	task := rt.task

	p.mu.Lock()
	if cur, ok := p.running[task.ID]; ok && cur == rt {
		delete(p.running, task.ID)
	}
	if rt.discard {
		p.afterTaskLocked()
		p.mu.Unlock()
		return
	}

	now := time.Now()
	_ = p.store.UpdateRecord(task.ID, func(rec *store.TaskRecord) {
		rec.Status = store.TaskFailed
		rec.Error = taskErr.Error()
		rec.Duration = duration
		rec.UpdatedAt = now
	})

	p.publish(bus.EventTaskFailed, task.Ctx.SessionID, task.ID, task.Agent.ID, taskErr)

	if p.circuitLocked(task.Agent.ID).recordFailure() {
		p.logger.Warn("agent disabled after repeated failures",
			logger.Field{Key: "agent_id", Value: task.Agent.ID},
			logger.Field{Key: "threshold", Value: p.circuitThreshold})
		p.publish(bus.EventAgentDisabled, task.Ctx.SessionID, task.ID, task.Agent.ID, nil)
		if p.metrics != nil {
			p.metrics.RecordCircuitTrip(task.Agent.ID)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordTask(string(store.TaskFailed), duration)
	}

	p.logger.Warn("task failed",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "agent_id", Value: task.Agent.ID},
		logger.Field{Key: "error", Value: taskErr.Error()})

	p.afterTaskLocked()
	p.mu.Unlock()
}

// finishCompleted persists the surviving cards and records completion.
func (p *Pool) finishCompleted(rt *runningTask, kept []string, duration time.Duration) {
	task := rt.task
	d := task.Agent

	p.mu.Lock()
	if cur, ok := p.running[task.ID]; ok && cur == rt {
		delete(p.running, task.ID)
	}
	if rt.discard {
		p.afterTaskLocked()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	items := make([]store.Item, 0, len(kept))
	for _, content := range kept {
		item := store.Item{
			ID:        uuid.NewString(),
			Category:  d.Category,
			Content:   content,
			AgentID:   d.ID,
			CreatedAt: time.Now(),
		}
		p.store.AppendItem(item)
		if p.gate != nil {
			p.gate.Warm(item)
		}
		items = append(items, item)
	}

	preview := ""
	if len(kept) > 0 {
		preview = truncatePreview(kept[0])
	}

	p.mu.Lock()
	now := time.Now()
	_ = p.store.UpdateRecord(task.ID, func(rec *store.TaskRecord) {
		rec.Status = store.TaskCompleted
		rec.Preview = preview
		rec.Duration = duration
		rec.CardsCreated = len(items)
		rec.UpdatedAt = now
	})

	p.circuitLocked(d.ID).recordSuccess()

	event := bus.NewEvent(bus.EventTaskCompleted)
	event.SessionID = task.Ctx.SessionID
	event.TaskID = task.ID
	event.AgentID = d.ID
	event.Cards = len(items)
	p.events.Publish(event)

	if len(items) > 0 {
		cardsEvent := bus.NewEvent(bus.EventCardsCreated)
		cardsEvent.SessionID = task.Ctx.SessionID
		cardsEvent.TaskID = task.ID
		cardsEvent.AgentID = d.ID
		cardsEvent.Cards = len(items)
		p.events.Publish(cardsEvent)
	}

	if p.metrics != nil {
		p.metrics.RecordTask(string(store.TaskCompleted), duration)
	}

	p.logger.Info("task completed",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "agent_id", Value: d.ID},
		logger.Field{Key: "cards", Value: len(items)},
		logger.Field{Key: "duration_ms", Value: duration.Milliseconds()})

	p.afterTaskLocked()
	p.mu.Unlock()
}

// afterTaskLocked refreshes gauges and fills the freed slot.
func (p *Pool) afterTaskLocked() {
	if p.metrics != nil {
		p.metrics.SetRunning(len(p.running))
	}
	p.dispatchLocked()
}

// PauseTask parks a task. A queued task leaves the queue; a running task is
// evicted from the running set at once, freeing its slot, while the in-flight
// call runs to completion and its result is discarded. Parked tasks wait for
// ResumeTask or Retry.
func (p *Pool) PauseTask(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if task, idx := p.queuedLocked(taskID); task != nil {
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
		p.parked[taskID] = task
		p.markLocked(task, store.TaskPaused, bus.EventTaskPaused)
		return nil
	}

	if rt, ok := p.running[taskID]; ok {
		rt.discard = true
		delete(p.running, taskID)
		p.parked[taskID] = rt.task
		p.markLocked(rt.task, store.TaskPaused, bus.EventTaskPaused)
		p.afterTaskLocked()
		return nil
	}

	return ErrTaskNotFound
}

// ResumeTask re-queues a parked task with its original context.
func (p *Pool) ResumeTask(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.parked[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	delete(p.parked, taskID)

	now := time.Now()
	_ = p.store.UpdateRecord(taskID, func(rec *store.TaskRecord) {
		rec.Status = store.TaskQueued
		rec.UpdatedAt = now
	})

	task.CreatedAt = now
	p.queue = append(p.queue, task)
	p.sortQueueLocked()
	p.dispatchLocked()
	return nil
}

// Cancel terminates a task. A queued or parked task is removed; a running
// task leaves the running set at once, freeing its slot, and the in-flight
// call's late result is discarded when it resolves. Cancelled is terminal:
// only Retry brings the id back.
func (p *Pool) Cancel(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if task, idx := p.queuedLocked(taskID); task != nil {
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
		if p.metrics != nil {
			p.metrics.SetQueueDepth(len(p.queue))
		}
		p.markLocked(task, store.TaskCancelled, bus.EventTaskCancelled)
		return nil
	}

	if task, ok := p.parked[taskID]; ok {
		delete(p.parked, taskID)
		p.markLocked(task, store.TaskCancelled, bus.EventTaskCancelled)
		return nil
	}

	if rt, ok := p.running[taskID]; ok {
		rt.discard = true
		delete(p.running, taskID)
		p.markLocked(rt.task, store.TaskCancelled, bus.EventTaskCancelled)
		p.afterTaskLocked()
		return nil
	}

	return ErrTaskNotFound
}

// Retry re-queues a failed, cancelled, or parked task under its original id.
// The execution context is re-derived from current session state when a
// ContextSource is configured, so the retried task sees the session as it is
// now; without a source, a parked task reuses its captured context and other
// tasks restart with an empty one. RetryCount increments; the queued
// lifecycle starts over.
func (p *Pool) Retry(taskID string) error {
	p.mu.Lock()

	rec, ok := p.store.Record(taskID)
	if !ok {
		p.mu.Unlock()
		return ErrTaskNotFound
	}
	switch rec.Status {
	case store.TaskFailed, store.TaskCancelled, store.TaskPaused:
	default:
		p.mu.Unlock()
		return ErrTaskNotRetryable
	}

	var d *agents.Descriptor
	var ec agents.Context

	if task, parked := p.parked[taskID]; parked {
		delete(p.parked, taskID)
		d = task.Agent
		ec = task.Ctx
	} else {
		d, ok = p.registry.Get(rec.AgentID)
		if !ok {
			p.mu.Unlock()
			return ErrAgentUnknown
		}
	}
	source := p.source
	p.mu.Unlock()

	// The source is typically the orchestrator, which takes its own lock and
	// calls back into the pool from its dispatch paths; re-deriving while
	// holding p.mu would invert the lock order.
	if source != nil {
		ec = source.CurrentContext(d)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: another Retry may have re-queued the task while the lock was
	// released.
	rec, ok = p.store.Record(taskID)
	if !ok {
		return ErrTaskNotFound
	}
	switch rec.Status {
	case store.TaskFailed, store.TaskCancelled, store.TaskPaused:
	default:
		return ErrTaskNotRetryable
	}

	retryCount := rec.RetryCount + 1
	now := time.Now()
	_ = p.store.UpdateRecord(taskID, func(r *store.TaskRecord) {
		r.Status = store.TaskQueued
		r.Error = ""
		r.Preview = ""
		r.RetryCount = retryCount
		r.UpdatedAt = now
	})

	p.submitLocked(d, ec, rec.Priority, retryCount, taskID)
	return nil
}

// queuedLocked finds a queued task by id.
func (p *Pool) queuedLocked(taskID string) (*Task, int) {
	for i, task := range p.queue {
		if task.ID == taskID {
			return task, i
		}
	}
	return nil, -1
}

// markLocked applies a terminal or parked status and publishes the matching
// event.
func (p *Pool) markLocked(task *Task, status store.TaskStatus, eventType bus.EventType) {
	now := time.Now()
	_ = p.store.UpdateRecord(task.ID, func(rec *store.TaskRecord) {
		rec.Status = status
		rec.UpdatedAt = now
	})
	p.publish(eventType, task.Ctx.SessionID, task.ID, task.Agent.ID, nil)
	p.logger.Debug("task state changed",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "status", Value: string(status)})
}

func (p *Pool) publish(t bus.EventType, sessionID, taskID, agentID string, err error) {
	event := bus.NewEvent(t)
	event.SessionID = sessionID
	event.TaskID = taskID
	event.AgentID = agentID
	if err != nil {
		event.Error = err.Error()
	}
	p.events.Publish(event)
}

// Stop prevents further dispatch and waits for running tasks to finish.
// Queued tasks stay queued; their records keep the queued status.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func truncatePreview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
