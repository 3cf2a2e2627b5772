package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func busForTest(t *testing.T, log *logger.Logger) *bus.EventBus {
	t.Helper()
	events := bus.New(256, log)
	t.Cleanup(events.Close)
	return events
}

// stubInvoker returns per-agent canned cards or errors, optionally blocking
// until released.
type stubInvoker struct {
	mu       sync.Mutex
	cards    map[string][]string
	errs     map[string]error
	block    chan struct{}
	seen     []agents.Context
	agentIDs []string
}

func newStubInvoker() *stubInvoker {
	return &stubInvoker{
		cards: make(map[string][]string),
		errs:  make(map[string]error),
	}
}

func (s *stubInvoker) Invoke(ctx context.Context, d *agents.Descriptor, ec agents.Context) ([]string, error) {
	s.mu.Lock()
	s.seen = append(s.seen, ec)
	s.agentIDs = append(s.agentIDs, d.ID)
	cards := s.cards[d.ID]
	err := s.errs[d.ID]
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *stubInvoker) setCards(agentID string, cards ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[agentID] = cards
}

func (s *stubInvoker) setErr(agentID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, agentID)
	} else {
		s.errs[agentID] = err
	}
}

func (s *stubInvoker) setBlock(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = ch
}

func (s *stubInvoker) invocationOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.agentIDs...)
}

func (s *stubInvoker) contexts() []agents.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agents.Context(nil), s.seen...)
}

type poolFixture struct {
	pool    *Pool
	store   *store.MemoryStore
	events  *bus.EventBus
	invoker *stubInvoker
	reg     *agents.Registry
}

func newPoolFixture(t *testing.T, cfg Config) *poolFixture {
	t.Helper()
	log := newTestLogger(t)
	st := store.NewMemoryStore()
	events := busForTest(t, log)
	invoker := newStubInvoker()
	reg := agents.NewRegistry()

	pool := NewPool(cfg, reg, invoker, nil, st, events, nil, log, nil)
	t.Cleanup(pool.Stop)

	return &poolFixture{pool: pool, store: st, events: events, invoker: invoker, reg: reg}
}

func testAgent(id string, priority int) *agents.Descriptor {
	return &agents.Descriptor{
		ID:       id,
		Name:     id,
		Priority: priority,
		Category: "note",
	}
}

func (f *poolFixture) waitStatus(t *testing.T, taskID string, want store.TaskStatus) store.TaskRecord {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, ok := f.store.Record(taskID)
		return ok && rec.Status == want
	}, waitFor, tick, "task %s never reached %s", taskID, want)
	rec, _ := f.store.Record(taskID)
	return rec
}

func TestPool_SubmitExecutesTask(t *testing.T) {
	f := newPoolFixture(t, Config{})
	agent := testAgent("summarizer", 5)
	f.invoker.setCards("summarizer", "Q3 budget is due Friday")

	id := f.pool.Submit(agent, agents.Context{SessionID: "s1", BatchText: "budget talk"}, -1)
	require.NotEmpty(t, id)

	rec := f.waitStatus(t, id, store.TaskCompleted)
	assert.Equal(t, "summarizer", rec.AgentID)
	assert.Equal(t, 5, rec.Priority)
	assert.Equal(t, 1, rec.CardsCreated)
	assert.Equal(t, "Q3 budget is due Friday", rec.Preview)
	assert.Zero(t, rec.RetryCount)

	items := f.store.Items("note")
	require.Len(t, items, 1)
	assert.Equal(t, "Q3 budget is due Friday", items[0].Content)
	assert.Equal(t, "summarizer", items[0].AgentID)
}

func TestPool_FailureIsIsolatedPerTask(t *testing.T) {
	f := newPoolFixture(t, Config{Concurrency: 1})
	good := testAgent("good", 5)
	bad := testAgent("bad", 5)
	f.invoker.setCards("good", "a useful card")
	f.invoker.setErr("bad", assert.AnError)

	badID := f.pool.Submit(bad, agents.Context{}, -1)
	goodID := f.pool.Submit(good, agents.Context{}, -1)

	badRec := f.waitStatus(t, badID, store.TaskFailed)
	assert.Contains(t, badRec.Error, assert.AnError.Error())
	assert.NotZero(t, badRec.UpdatedAt)

	goodRec := f.waitStatus(t, goodID, store.TaskCompleted)
	assert.Equal(t, 1, goodRec.CardsCreated)
}

func TestPool_CompletionWithNoCards(t *testing.T) {
	f := newPoolFixture(t, Config{})
	agent := testAgent("quiet", 5)

	id := f.pool.Submit(agent, agents.Context{}, -1)

	rec := f.waitStatus(t, id, store.TaskCompleted)
	assert.Zero(t, rec.CardsCreated)
	assert.Empty(t, rec.Preview)
	assert.Empty(t, f.store.Items(""))
}

func TestPool_ExplicitPriorityOverridesAgent(t *testing.T) {
	f := newPoolFixture(t, Config{})
	f.pool.Pause()
	agent := testAgent("a", 2)

	id := f.pool.Submit(agent, agents.Context{}, 9)

	rec, ok := f.store.Record(id)
	require.True(t, ok)
	assert.Equal(t, 9, rec.Priority)
}
