package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/ids"
	"groundedmemory/infrastructure/persistence/sqlite"
)

func newTestLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l := sqlite.NewLedger(dbPath)
	require.NoError(t, l.Init(context.Background()))
	return l
}

func TestLedger_RecordAndFindOpen(t *testing.T) {
	ledger := newTestLedger(t)
	thread, err := ids.NewThreadID("thread-ledger")
	require.NoError(t, err)

	rec := contradiction.Open(thread, "employer", ids.NewMemoryID(), ids.NewMemoryID(), "acme", "globex",
		contradiction.TypeRevision, 0.4, 0.9, 0.9, 0.9, 0.9, time.Now())

	_, err = ledger.Record(context.Background(), rec)
	require.NoError(t, err)

	open, err := ledger.FindOpen(context.Background(), thread)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, contradiction.StatusOpen, open[0].Status())
}

func TestLedger_UpdateStatusTransitionsAndPersists(t *testing.T) {
	ledger := newTestLedger(t)
	thread, err := ids.NewThreadID("thread-ledger-2")
	require.NoError(t, err)

	newMemID := ids.NewMemoryID()
	rec := contradiction.Open(thread, "employer", ids.NewMemoryID(), newMemID, "acme", "globex",
		contradiction.TypeRevision, 0.4, 0.9, 0.9, 0.9, 0.9, time.Now())
	_, err = ledger.Record(context.Background(), rec)
	require.NoError(t, err)

	resolution := &contradiction.Resolution{Method: contradiction.MethodUserClarified, WinningMemoryID: newMemID}
	err = ledger.UpdateStatus(context.Background(), thread, rec.ID(), contradiction.StatusResolved, resolution)
	require.NoError(t, err)

	resolved, err := ledger.GetResolved(context.Background(), thread)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, contradiction.StatusResolved, resolved[0].Status())

	open, err := ledger.FindOpen(context.Background(), thread)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLedger_SummarizeCountsByStatus(t *testing.T) {
	ledger := newTestLedger(t)
	thread, err := ids.NewThreadID("thread-ledger-3")
	require.NoError(t, err)

	open := contradiction.Open(thread, "employer", ids.NewMemoryID(), ids.NewMemoryID(), "a", "b",
		contradiction.TypeRevision, 0.4, 0.9, 0.9, 0.9, 0.9, time.Now())
	_, err = ledger.Record(context.Background(), open)
	require.NoError(t, err)

	dup := contradiction.Open(thread, "city", ids.NewMemoryID(), ids.NewMemoryID(), "a", "b",
		contradiction.TypeDuplicate, 0.1, 0.9, 0.9, 0.9, 0.9, time.Now())
	_, err = ledger.Record(context.Background(), dup)
	require.NoError(t, err)

	summary, err := ledger.Summarize(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Open)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestLedger_ResetClearsThread(t *testing.T) {
	ledger := newTestLedger(t)
	thread, err := ids.NewThreadID("thread-ledger-4")
	require.NoError(t, err)

	rec := contradiction.Open(thread, "employer", ids.NewMemoryID(), ids.NewMemoryID(), "a", "b",
		contradiction.TypeRevision, 0.4, 0.9, 0.9, 0.9, 0.9, time.Now())
	_, err = ledger.Record(context.Background(), rec)
	require.NoError(t, err)

	require.NoError(t, ledger.Reset(context.Background(), thread))

	open, err := ledger.FindOpen(context.Background(), thread)
	require.NoError(t, err)
	assert.Empty(t, open)
}
