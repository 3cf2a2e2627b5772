// Package orchestrator drives a session: it buffers transcript fragments,
// debounces them into batches, screens batches through the relevance gate,
// and submits eligible agents to the worker pool. A separate scheduler
// submits dependency-gated second-pass agents.
package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/relevance"
	"github.com/boardkit/dispatch/internal/store"
)

// Mode controls the debounce delay and whether batches dispatch at all.
type Mode string

const (
	ModeFast   Mode = "fast"
	ModeMedium Mode = "medium"
	ModeSlow   Mode = "slow"
	ModeOff    Mode = "off"
)

// DebounceDelay returns the quiet period required before dispatch.
// ModeOff returns 0: fragments buffer until a manual Flush.
func (m Mode) DebounceDelay() time.Duration {
	switch m {
	case ModeFast:
		return 1 * time.Second
	case ModeSlow:
		return 8 * time.Second
	case ModeOff:
		return 0
	default:
		return 3 * time.Second
	}
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeMedium, ModeSlow, ModeOff:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown session mode: %q", s)
}

// Defaults for the orchestrator configuration.
const (
	DefaultWindowSize = 5

	DefaultPhaseEarlyUntil = 10 * time.Minute
	DefaultPhaseMidUntil   = 30 * time.Minute

	DefaultSecondPassCheckInterval = 30 * time.Second
	DefaultSecondPassMinInterval   = 60 * time.Second
	DefaultSecondPassMinNewItems   = 5
)

// Config holds orchestrator tuning knobs.
type Config struct {
	SessionID string
	Mode      Mode

	// WindowSize bounds the rolling background window, in batches.
	WindowSize int

	// Phase thresholds: elapsed < PhaseEarlyUntil is early, < PhaseMidUntil
	// is mid, anything later is late.
	PhaseEarlyUntil time.Duration
	PhaseMidUntil   time.Duration

	// SecondPassCheckInterval is the periodic scheduler tick.
	SecondPassCheckInterval time.Duration
	// SecondPassMinInterval is the minimum time between re-runs of one
	// second-pass agent.
	SecondPassMinInterval time.Duration
	// SecondPassMinNewItems is the minimum number of new dependency-category
	// items required before a re-run.
	SecondPassMinNewItems int

	// DebounceDelay overrides the mode-derived delay when positive. Tests
	// use it to run with short timers.
	DebounceDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeMedium
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.PhaseEarlyUntil <= 0 {
		c.PhaseEarlyUntil = DefaultPhaseEarlyUntil
	}
	if c.PhaseMidUntil <= c.PhaseEarlyUntil {
		c.PhaseMidUntil = DefaultPhaseMidUntil
	}
	if c.SecondPassCheckInterval <= 0 {
		c.SecondPassCheckInterval = DefaultSecondPassCheckInterval
	}
	if c.SecondPassMinInterval <= 0 {
		c.SecondPassMinInterval = DefaultSecondPassMinInterval
	}
	if c.SecondPassMinNewItems <= 0 {
		c.SecondPassMinNewItems = DefaultSecondPassMinNewItems
	}
}

// TaskPool is the slice of the worker pool the orchestrator drives.
type TaskPool interface {
	Submit(d *agents.Descriptor, ec agents.Context, priority int) string
	SubmitAll(ec agents.Context) []string
}

// secondPassHistory gates re-runs of one second-pass agent.
type secondPassHistory struct {
	lastRunAt      time.Time
	itemCountAtRun int
}

// Orchestrator owns one session's dispatch state.
type Orchestrator struct {
	mu        sync.Mutex
	cfg       Config
	startedAt time.Time
	buffer    []string
	timer     *time.Timer
	window    []string
	history   map[string]secondPassHistory
	completed map[string]int // agent id -> completion count
	stopped   bool

	gate     *relevance.Gate
	pool     TaskPool
	registry *agents.Registry
	content  store.ContentStore
	events   *bus.EventBus
	logger   *logger.Logger

	cron *cron.Cron
	sub  *bus.Subscription
	done chan struct{}
}

// New creates an orchestrator for one session. Call Start to activate the
// second-pass scheduler.
func New(cfg Config, gate *relevance.Gate, pool TaskPool, registry *agents.Registry, content store.ContentStore, events *bus.EventBus, log *logger.Logger) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:       cfg,
		startedAt: time.Now(),
		history:   make(map[string]secondPassHistory),
		completed: make(map[string]int),
		gate:      gate,
		pool:      pool,
		registry:  registry,
		content:   content,
		events:    events,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// Start launches the completion listener and the periodic second-pass check.
func (o *Orchestrator) Start() error {
	o.sub = o.events.Subscribe()
	go o.listen()

	o.cron = cron.New()
	spec := fmt.Sprintf("@every %s", o.cfg.SecondPassCheckInterval)
	if _, err := o.cron.AddFunc(spec, o.CheckSecondPass); err != nil {
		return fmt.Errorf("schedule second-pass check: %w", err)
	}
	o.cron.Start()

	o.logger.Info("orchestrator started",
		logger.Field{Key: "session_id", Value: o.cfg.SessionID},
		logger.Field{Key: "mode", Value: string(o.cfg.Mode)})
	return nil
}

// Stop halts timers and the scheduler. Buffered fragments are discarded.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.timer != nil {
		o.timer.Stop()
	}
	o.mu.Unlock()

	if o.cron != nil {
		o.cron.Stop()
	}
	close(o.done)
	if o.sub != nil {
		o.events.Unsubscribe(o.sub)
	}
	o.logger.Info("orchestrator stopped",
		logger.Field{Key: "session_id", Value: o.cfg.SessionID})
}

// listen feeds task completions into the second-pass scheduler.
func (o *Orchestrator) listen() {
	for {
		select {
		case event, ok := <-o.sub.Ch():
			if !ok {
				return
			}
			if event.Type == bus.EventTaskCompleted && event.AgentID != "" {
				o.mu.Lock()
				o.completed[event.AgentID]++
				o.mu.Unlock()
				o.CheckSecondPass()
			}
		case <-o.done:
			return
		}
	}
}

// AddFragment buffers one transcript fragment and resets the debounce timer.
// In ModeOff fragments accumulate until Flush.
func (o *Orchestrator) AddFragment(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}

	o.buffer = append(o.buffer, text)

	delay := o.cfg.DebounceDelay
	if delay <= 0 {
		delay = o.cfg.Mode.DebounceDelay()
	}
	if o.cfg.Mode == ModeOff {
		return
	}

	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(delay, o.flushDebounced)
}

// Flush dispatches the current buffer immediately, regardless of mode.
func (o *Orchestrator) Flush() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.dispatchLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) flushDebounced() {
	o.mu.Lock()
	o.dispatchLocked()
	o.mu.Unlock()
}

// dispatchLocked flattens the buffer into one batch, screens it, and submits
// eligible agents.
func (o *Orchestrator) dispatchLocked() {
	if o.stopped || len(o.buffer) == 0 {
		return
	}

	batch := strings.Join(o.buffer, "\n")
	o.buffer = nil

	assessment := o.gate.Assess(batch)
	if !assessment.Substantive {
		o.logger.Debug("batch dropped as filler",
			logger.Field{Key: "session_id", Value: o.cfg.SessionID},
			logger.Field{Key: "substance_ratio", Value: assessment.SubstanceRatio})
		return
	}

	windowText := strings.Join(o.window, "\n")
	o.window = append(o.window, batch)
	if len(o.window) > o.cfg.WindowSize {
		o.window = o.window[len(o.window)-o.cfg.WindowSize:]
	}

	ec := agents.Context{
		SessionID:  o.cfg.SessionID,
		BatchText:  batch,
		WindowText: windowText,
		Phase:      o.phaseLocked(),
		Tags:       assessment.Tags,
	}

	event := bus.NewEvent(bus.EventBatchDispatched)
	event.SessionID = o.cfg.SessionID
	event.Metadata = map[string]any{"tags": assessment.Tags, "chars": len(batch)}
	o.events.Publish(event)

	ids := o.pool.SubmitAll(ec)
	o.logger.Info("batch dispatched",
		logger.Field{Key: "session_id", Value: o.cfg.SessionID},
		logger.Field{Key: "tasks", Value: len(ids)},
		logger.Field{Key: "tags", Value: strings.Join(assessment.Tags, ",")})
}

// phaseLocked derives the meeting phase from elapsed wall-clock time.
func (o *Orchestrator) phaseLocked() agents.Phase {
	elapsed := time.Since(o.startedAt)
	switch {
	case elapsed < o.cfg.PhaseEarlyUntil:
		return agents.PhaseEarly
	case elapsed < o.cfg.PhaseMidUntil:
		return agents.PhaseMid
	default:
		return agents.PhaseLate
	}
}

// CurrentContext re-derives an execution context from present session state.
// The worker pool uses it when retrying a task.
func (o *Orchestrator) CurrentContext(d *agents.Descriptor) agents.Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	if d.SecondPass() {
		return agents.Context{
			SessionID:    o.cfg.SessionID,
			Phase:        o.phaseLocked(),
			SecondPass:   true,
			PrimaryInput: o.primaryInputLocked(d),
		}
	}

	batch := ""
	window := o.window
	if len(window) > 0 {
		batch = window[len(window)-1]
		window = window[:len(window)-1]
	}
	return agents.Context{
		SessionID:  o.cfg.SessionID,
		BatchText:  batch,
		WindowText: strings.Join(window, "\n"),
		Phase:      o.phaseLocked(),
	}
}
