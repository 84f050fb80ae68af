package disclosure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/disclosure"
	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

func newEmployerMemory(t *testing.T, text string) *memory.Memory {
	t.Helper()
	thread, err := ids.NewThreadID("thread-disclosure")
	require.NoError(t, err)
	m, err := memory.New(thread, text, nil, memory.SourceUser, 0.9, 0.9, "hashing-v1", time.Now())
	require.NoError(t, err)
	return m
}

func TestEnforcer_MissingNeededWhenCaveatAbsent(t *testing.T) {
	e := disclosure.New()
	thread, err := ids.NewThreadID("thread-disclosure")
	require.NoError(t, err)

	m := newEmployerMemory(t, "I work at Acme Corp")
	rec := contradiction.Open(thread, facts.SlotEmployer, m.ID(), ids.NewMemoryID(), "acme corp", "initech", contradiction.TypeConflict, 0.8, 0.9, 0.9, 0.9, 0.9, time.Now())

	required := e.RequiredDisclosures([]ports.ScoredMemory{{Memory: m, Score: 0.9}}, []*contradiction.Record{rec})
	require.Len(t, required, 1)

	outcomes := e.Verify("You work at Acme Corp.", required)
	require.Len(t, outcomes, 1)
	assert.Equal(t, disclosure.OutcomeMissingNeeded, outcomes[0])
}

func TestEnforcer_DisclosedNeededWhenCaveatPresent(t *testing.T) {
	e := disclosure.New()
	thread, err := ids.NewThreadID("thread-disclosure")
	require.NoError(t, err)

	m := newEmployerMemory(t, "I work at Acme Corp")
	rec := contradiction.Open(thread, facts.SlotEmployer, m.ID(), ids.NewMemoryID(), "acme corp", "initech", contradiction.TypeConflict, 0.8, 0.9, 0.9, 0.9, 0.9, time.Now())

	required := e.RequiredDisclosures([]ports.ScoredMemory{{Memory: m, Score: 0.9}}, []*contradiction.Record{rec})
	require.Len(t, required, 1)

	outcomes := e.Verify("You work at acme corp (updated from acme corp to initech).", required)
	require.Len(t, outcomes, 1)
	assert.Equal(t, disclosure.OutcomeDisclosedNeeded, outcomes[0])
}

func TestEnforcer_AbsentCorrectWhenNoOpenContradiction(t *testing.T) {
	e := disclosure.New()
	outcomes := e.Verify("You work at Acme Corp.", nil)
	require.Len(t, outcomes, 1)
	assert.Equal(t, disclosure.OutcomeAbsentCorrect, outcomes[0])
}

func TestEnforcer_DisclosedUnnecessaryWhenCaveatPresentButNoOpenContradiction(t *testing.T) {
	e := disclosure.New()
	outcomes := e.Verify("You work at Acme Corp (previously at a different company).", nil)
	require.Len(t, outcomes, 1)
	assert.Equal(t, disclosure.OutcomeDisclosedUnnecessary, outcomes[0])
}

func TestEnforcer_Inject(t *testing.T) {
	e := disclosure.New()
	required := []disclosure.RequiredDisclosure{{Slot: "employer", OldValue: "acme corp", NewValue: "initech"}}
	out := e.Inject([]string{"context line"}, required)
	require.Len(t, out, 2)
	assert.Contains(t, out[1], "updated from acme corp to initech")
}
