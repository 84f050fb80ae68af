package gates_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/gates"
	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

func newMemory(t *testing.T, text string, source memory.Source, trust, confidence float64) *memory.Memory {
	t.Helper()
	thread, err := ids.NewThreadID("thread-gate")
	require.NoError(t, err)
	m, err := memory.New(thread, text, nil, source, trust, confidence, "hashing-v1", time.Now())
	require.NoError(t, err)
	return m
}

func TestGate_RejectNoMemory(t *testing.T) {
	g := gates.New(config.DefaultDomainConfig())

	// The candidate asserts a fact that appears nowhere but in its own
	// text; with retrieval empty the rejection must be the neutral
	// no-memory outcome, not a pass on self-support.
	out := g.Evaluate(gates.Input{
		UserText:        "where do I work?",
		UserIntent:      gates.IntentQuestion,
		CandidateOutput: "You work at Amazon.",
		NewFacts: map[facts.Slot][]facts.ExtractedFact{
			facts.SlotEmployer: {{Slot: facts.SlotEmployer, Value: "amazon"}},
		},
	})

	want := gates.GateOutcome{
		Outcome:      gates.OutcomeRejectNoMemory,
		ResponseType: gates.ResponseFactual,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("empty-retrieval outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestGate_MemoryGateIgnoresCandidateSelfSupport(t *testing.T) {
	g := gates.New(config.DefaultDomainConfig())
	m := newMemory(t, "something unrelated entirely", memory.SourceUser, 0.9, 0.9)

	// Retrieval is non-empty but supports nothing the candidate asserts;
	// the value appearing in the candidate's own text must not count.
	out := g.Evaluate(gates.Input{
		UserText:        "where do I work?",
		UserIntent:      gates.IntentQuestion,
		CandidateOutput: "You work at Amazon.",
		RetrievedMemories: []ports.ScoredMemory{
			{Memory: m, Score: 0.1},
		},
		NewFacts: map[facts.Slot][]facts.ExtractedFact{
			facts.SlotEmployer: {{Slot: facts.SlotEmployer, Value: "amazon"}},
		},
	})

	assert.NotEqual(t, gates.OutcomePassGrounded, out.Outcome)
	assert.NotEqual(t, gates.OutcomePassUngrounded, out.Outcome)
}

func TestGate_PassGroundedOnExactMemoryMatch(t *testing.T) {
	g := gates.New(config.DefaultDomainConfig())
	m := newMemory(t, "I work at acme corp", memory.SourceUser, 0.9, 0.9)

	out := g.Evaluate(gates.Input{
		UserText:        "where do I work?",
		UserIntent:      gates.IntentQuestion,
		CandidateOutput: "You work at acme corp.",
		RetrievedMemories: []ports.ScoredMemory{
			{Memory: m, Score: 0.9},
		},
		NewFacts: map[facts.Slot][]facts.ExtractedFact{
			facts.SlotEmployer: {{Slot: facts.SlotEmployer, Value: "acme corp"}},
		},
	})
	assert.Equal(t, gates.OutcomePassGrounded, out.Outcome)
}

func TestGate_RejectCorrectWhenIntentMismatchAndUngrounded(t *testing.T) {
	g := gates.New(config.DefaultDomainConfig())
	m := newMemory(t, "something unrelated entirely", memory.SourceUser, 0.9, 0.9)

	out := g.Evaluate(gates.Input{
		UserText:        "where do I work?",
		UserIntent:      gates.IntentQuestion,
		CandidateOutput: "Hi there! I'm an AI assistant.",
		RetrievedMemories: []ports.ScoredMemory{
			{Memory: m, Score: 0.1},
		},
	})
	assert.NotEqual(t, gates.OutcomePassGrounded, out.Outcome)
}

func TestGate_GreetingBypassesGrounding(t *testing.T) {
	g := gates.New(config.DefaultDomainConfig())
	m := newMemory(t, "unrelated memory text", memory.SourceUser, 0.9, 0.9)

	out := g.Evaluate(gates.Input{
		UserText:        "hey",
		UserIntent:      gates.IntentAssertion,
		CandidateOutput: "Hey there!",
		RetrievedMemories: []ports.ScoredMemory{
			{Memory: m, Score: 0.5},
		},
	})
	assert.Equal(t, gates.ResponseGreeting, out.ResponseType)
	assert.Equal(t, gates.OutcomePassGrounded, out.Outcome)
}
