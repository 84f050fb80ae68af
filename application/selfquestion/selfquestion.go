// Package selfquestion implements the clarifying-question generator: one
// question per gate-rejection reason, governed by a per-(thread, slot)
// disclosure budget measured in turns rather than wall-clock time.
package selfquestion

import (
	"fmt"
	"sync"

	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
)

// FailureType names why a gate rejected a candidate, determining which
// question template fires.
type FailureType string

const (
	FailureContradiction FailureType = "contradiction"
	FailureGrounding     FailureType = "grounding"
	FailureMemoryMiss    FailureType = "memory_miss"
	FailureIntentMismatch FailureType = "intent_mismatch"
)

// Request bundles the inputs to Question.
type Request struct {
	FailureType   FailureType
	Query         string
	RetrievedEmpty bool
	Contradiction *contradiction.Record
}

// Generator produces clarifying questions subject to a disclosure budget.
type Generator struct {
	cfg *config.DomainConfig

	mu      sync.Mutex
	windows map[string]*slotWindow // key: thread_id + "\x00" + slot
}

type slotWindow struct {
	turnsSinceAsked []int // turn numbers at which a question was asked
}

func New(cfg *config.DomainConfig) *Generator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Generator{cfg: cfg, windows: make(map[string]*slotWindow)}
}

// Question generates a single clarifying question for the given failure,
// or returns ok=false if the disclosure budget for this (thread, slot) is
// exhausted within the configured turn window. currentTurn is the
// orchestrator's monotonic turn counter for the thread.
func (g *Generator) Question(threadID string, slot facts.Slot, currentTurn int, req Request) (question string, ok bool) {
	if !g.withinBudget(threadID, slot, currentTurn) {
		return "", false
	}

	switch req.FailureType {
	case FailureContradiction:
		if req.Contradiction == nil {
			return "I have two different things recorded here. Which one should I use going forward?", true
		}
		return fmt.Sprintf(
			"I previously recorded %q; you're now saying %q. Which should I use going forward?",
			req.Contradiction.OldValue(), req.Contradiction.NewValue(),
		), true
	case FailureGrounding:
		return "I couldn't tie this to anything I've already stored. Can you tell me where you last saw this?", true
	case FailureMemoryMiss:
		if req.RetrievedEmpty {
			return "I don't have that yet — would you like me to remember it?", true
		}
		return "I couldn't find that in what I have stored. Can you remind me?", true
	case FailureIntentMismatch:
		return "Did you want me to store this, or answer a question about it?", true
	default:
		return "", false
	}
}

// withinBudget checks and, if allowed, records a use of the (thread, slot)
// disclosure budget: at most MaxClarifyingQuestionsPerWindow questions per
// ClarifyingQuestionWindowTurns turns.
func (g *Generator) withinBudget(threadID string, slot facts.Slot, currentTurn int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := threadID + "\x00" + string(slot)
	w, ok := g.windows[key]
	if !ok {
		w = &slotWindow{}
		g.windows[key] = w
	}

	windowStart := currentTurn - g.cfg.ClarifyingQuestionWindowTurns
	var kept []int
	for _, t := range w.turnsSinceAsked {
		if t > windowStart {
			kept = append(kept, t)
		}
	}
	w.turnsSinceAsked = kept

	if len(w.turnsSinceAsked) >= g.cfg.MaxClarifyingQuestionsPerWindow {
		return false
	}
	w.turnsSinceAsked = append(w.turnsSinceAsked, currentTurn)
	return true
}

// Reset clears the disclosure budget for a thread's slot, test-harness use.
func (g *Generator) Reset(threadID string, slot facts.Slot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.windows, threadID+"\x00"+string(slot))
}
