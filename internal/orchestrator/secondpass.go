package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/logger"
)

// CheckSecondPass submits every eligible second-pass agent. An agent is
// eligible once all its dependencies have completed at least once, and then
// again only when both the minimum interval has elapsed and enough new
// dependency-category items exist. The two-threshold gate prevents thrashing
// on every completion without going stale.
func (o *Orchestrator) CheckSecondPass() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}

	for _, d := range o.registry.All() {
		if !d.SecondPass() {
			continue
		}
		if !o.depsCompletedLocked(d) {
			continue
		}

		itemCount := o.dependencyItemCountLocked(d)
		h, ran := o.history[d.ID]
		if ran {
			if time.Since(h.lastRunAt) < o.cfg.SecondPassMinInterval {
				continue
			}
			if itemCount-h.itemCountAtRun < o.cfg.SecondPassMinNewItems {
				continue
			}
		}

		ec := agents.Context{
			SessionID:    o.cfg.SessionID,
			Phase:        o.phaseLocked(),
			SecondPass:   true,
			PrimaryInput: o.primaryInputLocked(d),
		}
		if !d.Active(ec) {
			continue
		}

		id := o.pool.Submit(d, ec, d.Priority)
		o.history[d.ID] = secondPassHistory{lastRunAt: time.Now(), itemCountAtRun: itemCount}

		o.logger.Info("second-pass agent submitted",
			logger.Field{Key: "agent_id", Value: d.ID},
			logger.Field{Key: "task_id", Value: id},
			logger.Field{Key: "dependency_items", Value: itemCount})
	}
}

// depsCompletedLocked reports whether every dependency agent has completed
// at least once this session.
func (o *Orchestrator) depsCompletedLocked(d *agents.Descriptor) bool {
	for _, dep := range d.DependsOn {
		if o.completed[dep] == 0 {
			return false
		}
	}
	return true
}

// dependencyCategoriesLocked resolves the card categories of an agent's
// dependencies.
func (o *Orchestrator) dependencyCategoriesLocked(d *agents.Descriptor) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, dep := range d.DependsOn {
		depAgent, ok := o.registry.Get(dep)
		if !ok || depAgent.Category == "" {
			continue
		}
		if _, dup := seen[depAgent.Category]; dup {
			continue
		}
		seen[depAgent.Category] = struct{}{}
		cats = append(cats, depAgent.Category)
	}
	return cats
}

// dependencyItemCountLocked counts current items across the dependency
// categories.
func (o *Orchestrator) dependencyItemCountLocked(d *agents.Descriptor) int {
	total := 0
	for _, cat := range o.dependencyCategoriesLocked(d) {
		total += o.content.CountByCategory(cat)
	}
	return total
}

// primaryInputLocked renders all current dependency-category items as a
// numbered list, the second-pass agent's main input.
func (o *Orchestrator) primaryInputLocked(d *agents.Descriptor) string {
	var b strings.Builder
	n := 0
	for _, cat := range o.dependencyCategoriesLocked(d) {
		for _, item := range o.content.Items(cat) {
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, item.Content)
		}
	}
	return b.String()
}
