package selfquestion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/selfquestion"
	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
)

func TestQuestion_ContradictionTemplate(t *testing.T) {
	gen := selfquestion.New(config.DefaultDomainConfig())
	thread, err := ids.NewThreadID("thread-sq")
	require.NoError(t, err)

	rec := contradiction.Open(thread, facts.SlotEmployer, ids.NewMemoryID(), ids.NewMemoryID(), "acme corp", "initech", contradiction.TypeConflict, 0.8, 0.9, 0.9, 0.9, 0.9, time.Now())

	q, ok := gen.Question(thread.String(), facts.SlotEmployer, 1, selfquestion.Request{
		FailureType:   selfquestion.FailureContradiction,
		Contradiction: rec,
	})
	require.True(t, ok)
	assert.Contains(t, q, "acme corp")
	assert.Contains(t, q, "initech")
	assert.Contains(t, q, "Which should I use going forward?")
}

func TestQuestion_GroundingTemplate(t *testing.T) {
	gen := selfquestion.New(config.DefaultDomainConfig())
	q, ok := gen.Question("thread-sq", facts.SlotEmployer, 1, selfquestion.Request{FailureType: selfquestion.FailureGrounding})
	require.True(t, ok)
	assert.Contains(t, q, "couldn't tie this to anything")
}

func TestQuestion_MemoryMissTemplateEmptyRetrieval(t *testing.T) {
	gen := selfquestion.New(config.DefaultDomainConfig())
	q, ok := gen.Question("thread-sq", facts.SlotEmployer, 1, selfquestion.Request{FailureType: selfquestion.FailureMemoryMiss, RetrievedEmpty: true})
	require.True(t, ok)
	assert.Contains(t, q, "would you like me to remember it?")
}

func TestQuestion_IntentMismatchTemplate(t *testing.T) {
	gen := selfquestion.New(config.DefaultDomainConfig())
	q, ok := gen.Question("thread-sq", facts.SlotEmployer, 1, selfquestion.Request{FailureType: selfquestion.FailureIntentMismatch})
	require.True(t, ok)
	assert.Contains(t, q, "store this, or answer a question")
}

func TestQuestion_NeverFabricatesAValue(t *testing.T) {
	gen := selfquestion.New(config.DefaultDomainConfig())
	q, ok := gen.Question("thread-sq", facts.SlotEmployer, 1, selfquestion.Request{FailureType: selfquestion.FailureGrounding})
	require.True(t, ok)
	assert.NotContains(t, q, "I think")
	assert.NotContains(t, q, "probably")
}

func TestQuestion_DisclosureBudgetExhausted(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxClarifyingQuestionsPerWindow = 2
	cfg.ClarifyingQuestionWindowTurns = 5
	gen := selfquestion.New(cfg)

	req := selfquestion.Request{FailureType: selfquestion.FailureGrounding}

	_, ok1 := gen.Question("thread-sq", facts.SlotEmployer, 1, req)
	_, ok2 := gen.Question("thread-sq", facts.SlotEmployer, 2, req)
	_, ok3 := gen.Question("thread-sq", facts.SlotEmployer, 3, req)

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3, "third question within the window should be budget-exhausted")
}

func TestQuestion_BudgetRecoversOutsideWindow(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxClarifyingQuestionsPerWindow = 1
	cfg.ClarifyingQuestionWindowTurns = 3
	gen := selfquestion.New(cfg)

	req := selfquestion.Request{FailureType: selfquestion.FailureGrounding}

	_, ok1 := gen.Question("thread-sq", facts.SlotEmployer, 1, req)
	_, ok2 := gen.Question("thread-sq", facts.SlotEmployer, 2, req)
	_, ok3 := gen.Question("thread-sq", facts.SlotEmployer, 10, req)

	assert.True(t, ok1)
	assert.False(t, ok2, "second question within the window should be blocked")
	assert.True(t, ok3, "question far outside the window should be allowed again")
}

func TestQuestion_BudgetIsPerSlot(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxClarifyingQuestionsPerWindow = 1
	cfg.ClarifyingQuestionWindowTurns = 5
	gen := selfquestion.New(cfg)

	req := selfquestion.Request{FailureType: selfquestion.FailureGrounding}

	_, ok1 := gen.Question("thread-sq", facts.SlotEmployer, 1, req)
	_, ok2 := gen.Question("thread-sq", facts.SlotLocation, 1, req)

	assert.True(t, ok1)
	assert.True(t, ok2, "budget is tracked independently per slot")
}

func TestQuestion_ResetClearsBudget(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxClarifyingQuestionsPerWindow = 1
	cfg.ClarifyingQuestionWindowTurns = 5
	gen := selfquestion.New(cfg)

	req := selfquestion.Request{FailureType: selfquestion.FailureGrounding}

	_, _ = gen.Question("thread-sq", facts.SlotEmployer, 1, req)
	gen.Reset("thread-sq", facts.SlotEmployer)
	_, ok := gen.Question("thread-sq", facts.SlotEmployer, 2, req)

	assert.True(t, ok)
}
