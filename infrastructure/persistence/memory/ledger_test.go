package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
)

func openRecord(t *testing.T, thread ids.ThreadID, oldVal, newVal string) *contradiction.Record {
	t.Helper()
	return contradiction.Open(
		thread, facts.SlotEmployer,
		ids.NewMemoryID(), ids.NewMemoryID(),
		oldVal, newVal,
		contradiction.TypeConflict,
		0.5, 0.9, 0.9, 0.9, 0.9,
		time.Now(),
	)
}

func TestLedger_RecordAndFindOpen(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	r := openRecord(t, thread, "microsoft", "amazon")
	id, err := l.Record(ctx, r)
	require.NoError(t, err)

	open, err := l.FindOpen(ctx, thread)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID())

	got, err := l.Get(ctx, thread, id)
	require.NoError(t, err)
	assert.Equal(t, contradiction.StatusOpen, got.Status())
}

func TestLedger_HasOpenForMemory(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	r := openRecord(t, thread, "microsoft", "amazon")
	_, err := l.Record(ctx, r)
	require.NoError(t, err)

	ok, err := l.HasOpenForMemory(ctx, thread, r.OldMemoryID())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.HasOpenForMemory(ctx, thread, ids.NewMemoryID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_UpdateStatusRunsTheFSM(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	r := openRecord(t, thread, "microsoft", "amazon")
	id, err := l.Record(ctx, r)
	require.NoError(t, err)

	res := &contradiction.Resolution{
		Method:          contradiction.MethodUserClarified,
		WinningMemoryID: r.NewMemoryID(),
		ResolvedAt:      time.Now(),
	}
	require.NoError(t, l.UpdateStatus(ctx, thread, id, contradiction.StatusResolved, res))

	got, err := l.Get(ctx, thread, id)
	require.NoError(t, err)
	assert.Equal(t, contradiction.StatusResolved, got.Status())

	// RESOLVED never goes back to OPEN.
	err = l.UpdateStatus(ctx, thread, id, contradiction.StatusOpen, nil)
	assert.Error(t, err)
}

func TestLedger_ResolveFromAssertionMarksWinner(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	r := openRecord(t, thread, "microsoft", "amazon")
	_, err := l.Record(ctx, r)
	require.NoError(t, err)

	newFacts := map[facts.Slot]facts.ExtractedFact{
		facts.SlotEmployer: {Slot: facts.SlotEmployer, Value: "amazon"},
	}
	resolved, err := l.ResolveFromAssertion(ctx, thread, newFacts, ids.NewMemoryID())
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	got, err := l.Get(ctx, thread, resolved[0])
	require.NoError(t, err)
	assert.Equal(t, contradiction.StatusResolved, got.Status())
	res := got.Resolution()
	require.NotNil(t, res)
	assert.Equal(t, contradiction.MethodUserClarified, res.Method)
	assert.Equal(t, r.NewMemoryID(), res.WinningMemoryID)

	// Re-running with the same facts is a no-op.
	again, err := l.ResolveFromAssertion(ctx, thread, newFacts, ids.NewMemoryID())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLedger_ResolveFromAssertionIgnoresUnrelatedFacts(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	_, err := l.Record(ctx, openRecord(t, thread, "microsoft", "amazon"))
	require.NoError(t, err)

	resolved, err := l.ResolveFromAssertion(ctx, thread, map[facts.Slot]facts.ExtractedFact{
		facts.SlotFavoriteColor: {Slot: facts.SlotFavoriteColor, Value: "green"},
	}, ids.NewMemoryID())
	require.NoError(t, err)
	assert.Empty(t, resolved)

	open, err := l.FindOpen(ctx, thread)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestLedger_SummarizeCountsByStatus(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	open := openRecord(t, thread, "microsoft", "amazon")
	_, err := l.Record(ctx, open)
	require.NoError(t, err)

	toResolve := openRecord(t, thread, "blue", "green")
	id, err := l.Record(ctx, toResolve)
	require.NoError(t, err)
	require.NoError(t, l.UpdateStatus(ctx, thread, id, contradiction.StatusResolved, &contradiction.Resolution{
		Method:          contradiction.MethodReplaced,
		WinningMemoryID: toResolve.NewMemoryID(),
		ResolvedAt:      time.Now(),
	}))

	summary, err := l.Summarize(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Open)
	assert.Equal(t, 1, summary.Resolved)
}

func TestLedger_ResetClearsThread(t *testing.T) {
	l := NewLedger()
	thread := testThread(t)
	ctx := context.Background()

	_, err := l.Record(ctx, openRecord(t, thread, "microsoft", "amazon"))
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, thread))

	summary, err := l.Summarize(ctx, thread)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}
