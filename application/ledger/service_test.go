package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groundedmemory/application/ledger"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	memstore "groundedmemory/infrastructure/persistence/memory"
	"groundedmemory/pkg/common"
)

func testThread(t *testing.T) ids.ThreadID {
	t.Helper()
	tid, err := ids.NewThreadID("thread-ledger")
	require.NoError(t, err)
	return tid
}

func TestService_RecordAndFindOpen(t *testing.T) {
	store := memstore.NewLedger()
	svc := ledger.New(store, &common.SystemClock{}, nil)
	thread := testThread(t)

	rec := contradiction.Open(thread, facts.SlotEmployer, ids.NewMemoryID(), ids.NewMemoryID(), "acme", "initech", contradiction.TypeConflict, 0.8, 0.9, 0.9, 0.9, 0.9, time.Now())

	id, err := svc.Record(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	open, err := svc.FindOpen(context.Background(), thread)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, contradiction.StatusOpen, open[0].Status())
}

func TestService_ResolveFromAssertion(t *testing.T) {
	store := memstore.NewLedger()
	clock := &common.FixedClock{At: time.Now()}
	svc := ledger.New(store, clock, nil)
	thread := testThread(t)

	oldID := ids.NewMemoryID()
	newID := ids.NewMemoryID()
	rec := contradiction.Open(thread, facts.SlotEmployer, oldID, newID, "acme", "initech", contradiction.TypeConflict, 0.8, 0.9, 0.9, 0.9, 0.9, clock.Now())
	_, err := svc.Record(context.Background(), rec)
	require.NoError(t, err)

	newFacts := map[facts.Slot]facts.ExtractedFact{
		facts.SlotEmployer: {Slot: facts.SlotEmployer, Value: "initech"},
	}
	resolvedIDs, err := svc.ResolveFromAssertion(context.Background(), thread, newFacts, newID)
	require.NoError(t, err)
	require.Len(t, resolvedIDs, 1)
	require.Equal(t, rec.ID(), resolvedIDs[0])

	resolved, err := svc.GetResolved(context.Background(), thread)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, contradiction.StatusResolved, resolved[0].Status())
	require.Equal(t, newID, resolved[0].Resolution().WinningMemoryID)
	require.Equal(t, contradiction.MethodUserClarified, resolved[0].Resolution().Method)

	// Idempotence: re-running against the same new facts resolves nothing
	// further, since the record is no longer OPEN.
	resolvedAgain, err := svc.ResolveFromAssertion(context.Background(), thread, newFacts, newID)
	require.NoError(t, err)
	require.Empty(t, resolvedAgain)
}

func TestService_SummarizeCountsDuplicates(t *testing.T) {
	store := memstore.NewLedger()
	svc := ledger.New(store, &common.SystemClock{}, nil)
	thread := testThread(t)

	dup := contradiction.Open(thread, facts.SlotFavoriteColor, ids.NewMemoryID(), ids.NewMemoryID(), "blue", "blue", contradiction.TypeDuplicate, 0.0, 0.9, 0.9, 0.9, 0.4, time.Now())
	_, err := svc.Record(context.Background(), dup)
	require.NoError(t, err)

	summary, err := svc.Summarize(context.Background(), thread)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Open)
	require.Equal(t, 1, summary.Duplicates)
}
