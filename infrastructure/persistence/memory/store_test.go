package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	domainmem "groundedmemory/domain/memory"
)

func testThread(t *testing.T) ids.ThreadID {
	t.Helper()
	tid, err := ids.NewThreadID("thread-1")
	require.NoError(t, err)
	return tid
}

func axisVector(t *testing.T, axis int) domainmem.Vector {
	t.Helper()
	raw := make([]float64, domainmem.Dim)
	raw[axis] = 1.0
	v, err := domainmem.NewVector(raw)
	require.NoError(t, err)
	return v
}

func newMemory(t *testing.T, thread ids.ThreadID, text string, axis int, trust float64, at time.Time) *domainmem.Memory {
	t.Helper()
	m, err := domainmem.New(thread, text, axisVector(t, axis), domainmem.SourceUser, trust, 0.9, "hashing-v1", at)
	require.NoError(t, err)
	return m
}

func TestStore_InsertAndGet(t *testing.T) {
	s := New(nil)
	thread := testThread(t)
	ctx := context.Background()

	m := newMemory(t, thread, "my favorite color is blue", 0, 0.9, time.Now())
	id, err := s.Insert(ctx, m)
	require.NoError(t, err)

	got, err := s.Get(ctx, thread, id)
	require.NoError(t, err)
	assert.Equal(t, "my favorite color is blue", got.Text())

	_, err = s.Get(ctx, thread, ids.NewMemoryID())
	assert.Error(t, err)
}

func TestStore_GetIsThreadScoped(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	threadA := testThread(t)
	threadB, err := ids.NewThreadID("thread-2")
	require.NoError(t, err)

	m := newMemory(t, threadA, "I work at Acme.", 0, 0.9, time.Now())
	id, err := s.Insert(ctx, m)
	require.NoError(t, err)

	_, err = s.Get(ctx, threadB, id)
	assert.Error(t, err, "a memory must not be readable from another thread")
}

func TestStore_RetrieveRanksBySimilarity(t *testing.T) {
	s := New(config.DefaultDomainConfig())
	thread := testThread(t)
	ctx := context.Background()
	now := time.Now()

	near := newMemory(t, thread, "favorite color blue", 0, 0.9, now)
	far := newMemory(t, thread, "employer acme", 1, 0.9, now)
	_, err := s.Insert(ctx, near)
	require.NoError(t, err)
	_, err = s.Insert(ctx, far)
	require.NoError(t, err)

	got, err := s.Retrieve(ctx, ports.RetrievalQuery{
		ThreadID:    thread,
		QueryVector: axisVector(t, 0),
		K:           2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, near.ID(), got[0].Memory.ID())
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestStore_RetrieveHonorsMinTrustAndK(t *testing.T) {
	s := New(config.DefaultDomainConfig())
	thread := testThread(t)
	ctx := context.Background()
	now := time.Now()

	trusted := newMemory(t, thread, "high trust", 0, 0.9, now)
	noisy := newMemory(t, thread, "low trust", 1, 0.2, now)
	_, err := s.Insert(ctx, trusted)
	require.NoError(t, err)
	_, err = s.Insert(ctx, noisy)
	require.NoError(t, err)

	got, err := s.Retrieve(ctx, ports.RetrievalQuery{
		ThreadID:    thread,
		QueryVector: axisVector(t, 0),
		K:           10,
		MinTrust:    0.5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, trusted.ID(), got[0].Memory.ID())
}

func TestStore_RetrieveEmptyThread(t *testing.T) {
	s := New(nil)

	got, err := s.Retrieve(context.Background(), ports.RetrievalQuery{
		ThreadID:    testThread(t),
		QueryVector: axisVector(t, 0),
		K:           5,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SoftDeleteExcludesFromRetrieval(t *testing.T) {
	s := New(nil)
	thread := testThread(t)
	ctx := context.Background()

	m := newMemory(t, thread, "soon gone", 0, 0.9, time.Now())
	id, err := s.Insert(ctx, m)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, thread, id))

	got, err := s.Retrieve(ctx, ports.RetrievalQuery{ThreadID: thread, QueryVector: axisVector(t, 0), K: 5})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Soft delete never removes the row itself.
	kept, err := s.Get(ctx, thread, id)
	require.NoError(t, err)
	assert.False(t, kept.Active())
}

func TestStore_SupersedeLinksNewToOld(t *testing.T) {
	s := New(nil)
	thread := testThread(t)
	ctx := context.Background()
	now := time.Now()

	old := newMemory(t, thread, "I work at Microsoft.", 0, 0.9, now)
	oldID, err := s.Insert(ctx, old)
	require.NoError(t, err)

	refined := newMemory(t, thread, "I work at Amazon.", 1, 0.9, now.Add(time.Minute))
	newID, err := s.Supersede(ctx, thread, oldID, refined)
	require.NoError(t, err)

	got, err := s.Get(ctx, thread, newID)
	require.NoError(t, err)
	linked, ok := got.Supersedes()
	require.True(t, ok)
	assert.Equal(t, oldID, linked)

	// The superseded memory still exists.
	_, err = s.Get(ctx, thread, oldID)
	assert.NoError(t, err)
}

func TestStore_GetBySlotLatestFirst(t *testing.T) {
	s := New(nil)
	thread := testThread(t)
	ctx := context.Background()
	base := time.Now()

	first := newMemory(t, thread, "I work at Microsoft.", 0, 0.9, base)
	second := newMemory(t, thread, "I work at Amazon.", 1, 0.9, base.Add(time.Hour))
	firstID, err := s.Insert(ctx, first)
	require.NoError(t, err)
	secondID, err := s.Insert(ctx, second)
	require.NoError(t, err)
	s.RecordSlot(thread, facts.SlotEmployer, firstID)
	s.RecordSlot(thread, facts.SlotEmployer, secondID)

	got, err := s.GetBySlot(ctx, thread, facts.SlotEmployer)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, secondID, got[0].ID())
	assert.Equal(t, firstID, got[1].ID())
}

func TestStore_ResetClearsThreadAndSlotIndex(t *testing.T) {
	s := New(nil)
	thread := testThread(t)
	ctx := context.Background()

	m := newMemory(t, thread, "I work at Acme.", 0, 0.9, time.Now())
	id, err := s.Insert(ctx, m)
	require.NoError(t, err)
	s.RecordSlot(thread, facts.SlotEmployer, id)

	require.NoError(t, s.Reset(ctx, thread))

	_, err = s.Get(ctx, thread, id)
	assert.Error(t, err)
	bySlot, err := s.GetBySlot(ctx, thread, facts.SlotEmployer)
	require.NoError(t, err)
	assert.Empty(t, bySlot)
}
