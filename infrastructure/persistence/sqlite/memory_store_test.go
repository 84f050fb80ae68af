package sqlite_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
	"groundedmemory/infrastructure/persistence/sqlite"
)

// unitVector builds a unit-norm vector with lead concentrated in the first
// component, the remaining norm spread evenly across the rest, satisfying
// memory.NewVector's dimensionality and unit-norm checks.
func unitVector(t *testing.T, lead float64) memory.Vector {
	t.Helper()
	raw := make([]float64, memory.Dim)
	raw[0] = lead
	remaining := 1 - lead*lead
	if remaining < 0 {
		remaining = 0
	}
	fill := 0.0
	if memory.Dim > 1 {
		fill = math.Sqrt(remaining / float64(memory.Dim-1))
	}
	for i := 1; i < memory.Dim; i++ {
		raw[i] = fill
	}
	v, err := memory.NewVector(raw)
	require.NoError(t, err)
	return v
}

func newTestStore(t *testing.T) *sqlite.MemoryStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	s := sqlite.NewMemoryStore(dbPath, config.DefaultDomainConfig())
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestMemoryStore_InsertAndGet(t *testing.T) {
	store := newTestStore(t)
	thread, err := ids.NewThreadID("thread-1")
	require.NoError(t, err)

	vec := unitVector(t, 1)
	m, err := memory.New(thread, "I live in Seattle", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)

	id, err := store.Insert(context.Background(), m)
	require.NoError(t, err)

	fetched, err := store.Get(context.Background(), thread, id)
	require.NoError(t, err)
	assert.Equal(t, "I live in Seattle", fetched.Text())
	assert.True(t, fetched.Active())
}

func TestMemoryStore_GetBySlotReturnsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	thread, err := ids.NewThreadID("thread-slots")
	require.NoError(t, err)

	vec := unitVector(t, 1)
	older, err := memory.New(thread, "employer: acme", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	newer, err := memory.New(thread, "employer: globex", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)

	_, err = store.Insert(context.Background(), older)
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), newer)
	require.NoError(t, err)

	store.RecordSlot(thread, "employer", older.ID())
	store.RecordSlot(thread, "employer", newer.ID())

	got, err := store.GetBySlot(context.Background(), thread, "employer")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID(), got[0].ID())
}

func TestMemoryStore_SoftDeleteExcludesFromRetrieve(t *testing.T) {
	store := newTestStore(t)
	thread, err := ids.NewThreadID("thread-softdelete")
	require.NoError(t, err)

	vec := unitVector(t, 1)
	m, err := memory.New(thread, "fact to remove", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)
	id, err := store.Insert(context.Background(), m)
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(context.Background(), thread, id))

	results, err := store.Retrieve(context.Background(), queryFor(thread, vec))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_SupersedeLinksOldID(t *testing.T) {
	store := newTestStore(t)
	thread, err := ids.NewThreadID("thread-supersede")
	require.NoError(t, err)

	vec := unitVector(t, 1)
	original, err := memory.New(thread, "lives in Seattle", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)
	oldID, err := store.Insert(context.Background(), original)
	require.NoError(t, err)

	refinement, err := memory.New(thread, "lives in Portland", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)
	newID, err := store.Supersede(context.Background(), thread, oldID, refinement)
	require.NoError(t, err)

	fetched, err := store.Get(context.Background(), thread, newID)
	require.NoError(t, err)
	supersedes, ok := fetched.Supersedes()
	require.True(t, ok)
	assert.Equal(t, oldID, supersedes)
}

func TestMemoryStore_ResetClearsThread(t *testing.T) {
	store := newTestStore(t)
	thread, err := ids.NewThreadID("thread-reset")
	require.NoError(t, err)

	vec := unitVector(t, 1)
	m, err := memory.New(thread, "temp fact", vec, memory.SourceUser, 0.9, 0.9, "hash-v1", time.Now())
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), m)
	require.NoError(t, err)

	require.NoError(t, store.Reset(context.Background(), thread))

	results, err := store.Retrieve(context.Background(), queryFor(thread, vec))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func queryFor(thread ids.ThreadID, vec memory.Vector) ports.RetrievalQuery {
	return ports.RetrievalQuery{
		ThreadID:    thread,
		QueryVector: vec,
		K:           10,
		MinTrust:    0,
	}
}
