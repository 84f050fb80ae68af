package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedmemory/application/detection"
	"groundedmemory/application/disclosure"
	"groundedmemory/application/embedding"
	"groundedmemory/application/extraction"
	"groundedmemory/application/flags"
	"groundedmemory/application/gates"
	ledgerapp "groundedmemory/application/ledger"
	"groundedmemory/application/orchestrator"
	"groundedmemory/application/ports"
	"groundedmemory/application/selfquestion"
	"groundedmemory/domain/config"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
	memstore "groundedmemory/infrastructure/persistence/memory"
	"groundedmemory/infrastructure/threadlock"
	"groundedmemory/pkg/common"
)

// newHarnessWithLedger is newHarness plus direct access to the ledger
// service, needed here to seed a contradiction record without routing it
// through IngestTurn's own detection path. These tests cover the explicit
// ResolveContradiction and ResetThread entry points in isolation.
func newHarnessWithLedger(t *testing.T, gen ports.Generator) (*orchestrator.Orchestrator, *ledgerapp.Service, ports.MemoryStore, ports.Embedder, ids.ThreadID) {
	t.Helper()
	cfg := config.DefaultDomainConfig()

	memStore := memstore.New(cfg)
	ledgerStore := memstore.NewLedger()
	clock := &common.FixedClock{At: time.Now()}
	emb := embedding.NewHashingEmbedder()

	extractor, err := extraction.New()
	require.NoError(t, err)

	ledgerSvc := ledgerapp.New(ledgerStore, clock, nil)
	det := detection.New(cfg)
	gate := gates.New(cfg)
	enforcer := disclosure.New()
	questioner := selfquestion.New(cfg)
	flagsReg, err := flags.New()
	require.NoError(t, err)
	locks := threadlock.NewRegistry()

	orch := orchestrator.New(
		memStore, ledgerSvc, emb, gen, extractor, nil,
		det, gate, enforcer, questioner, flagsReg, locks, clock, cfg, nil,
	)

	thread, err := ids.NewThreadID("thread-entrypoints")
	require.NoError(t, err)
	return orch, ledgerSvc, memStore, emb, thread
}

// TestResolveContradiction_TransitionsLedgerToResolved exercises the
// explicit resolution entry point, independent of IngestTurn's own
// ResolveFromAssertion path.
func TestResolveContradiction_TransitionsLedgerToResolved(t *testing.T) {
	orch, ledger, memStore, emb, thread := newHarnessWithLedger(t, &fakeGenerator{response: "noted"})
	ctx := context.Background()

	vec, modelID, err := emb.Embed(ctx, "microsoft")
	require.NoError(t, err)

	oldMem, err := memory.New(thread, "I work at microsoft", vec, memory.SourceUser, 0.9, 0.9, modelID, time.Now())
	require.NoError(t, err)
	oldID, err := memStore.Insert(ctx, oldMem)
	require.NoError(t, err)

	newMem, err := memory.New(thread, "I work at amazon", vec, memory.SourceLLM, 0.3, 0.3, modelID, time.Now())
	require.NoError(t, err)
	newID, err := memStore.Insert(ctx, newMem)
	require.NoError(t, err)

	rec := contradiction.Open(thread, facts.SlotEmployer, oldID, newID, "microsoft", "amazon", contradiction.TypeConflict, 0.4, 0.9, 0.3, 0.9, 0.3, time.Now())
	contradictionID, err := ledger.Record(ctx, rec)
	require.NoError(t, err)

	open, err := ledger.FindOpen(ctx, thread)
	require.NoError(t, err)
	require.Len(t, open, 1)

	err = orch.ResolveContradiction(ctx, thread, contradictionID, contradiction.MethodUserClarified, newID)
	require.NoError(t, err)

	resolved, err := ledger.GetResolved(ctx, thread)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, contradiction.StatusResolved, resolved[0].Status())
	assert.Equal(t, contradiction.MethodUserClarified, resolved[0].Resolution().Method)

	stillOpen, err := ledger.FindOpen(ctx, thread)
	require.NoError(t, err)
	assert.Empty(t, stillOpen)
}

// TestResetThread_ClearsRequestedTarget covers ResetThread for each of
// its three targets.
func TestResetThread_ClearsRequestedTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		orch, _, memStore, emb, thread := newHarnessWithLedger(t, &fakeGenerator{response: "ok"})
		vec, modelID, err := emb.Embed(ctx, "seed")
		require.NoError(t, err)
		m, err := memory.New(thread, "I work at acme", vec, memory.SourceUser, 0.9, 0.9, modelID, time.Now())
		require.NoError(t, err)
		_, err = memStore.Insert(ctx, m)
		require.NoError(t, err)

		require.NoError(t, orch.ResetThread(ctx, thread, orchestrator.ResetMemory))

		stored, err := memStore.GetBySlot(ctx, thread, facts.SlotEmployer)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("ledger", func(t *testing.T) {
		orch, ledger, memStore, emb, thread := newHarnessWithLedger(t, &fakeGenerator{response: "ok"})
		vec, modelID, err := emb.Embed(ctx, "microsoft")
		require.NoError(t, err)
		oldMem, err := memory.New(thread, "I work at microsoft", vec, memory.SourceUser, 0.9, 0.9, modelID, time.Now())
		require.NoError(t, err)
		oldID, err := memStore.Insert(ctx, oldMem)
		require.NoError(t, err)
		newMem, err := memory.New(thread, "I work at amazon", vec, memory.SourceLLM, 0.3, 0.3, modelID, time.Now())
		require.NoError(t, err)
		newID, err := memStore.Insert(ctx, newMem)
		require.NoError(t, err)
		// Register both under the slot, as the orchestrator does after Insert;
		// GetBySlot only returns slot-recorded memories.
		slots := memStore.(interface {
			RecordSlot(ids.ThreadID, facts.Slot, ids.MemoryID)
		})
		slots.RecordSlot(thread, facts.SlotEmployer, oldID)
		slots.RecordSlot(thread, facts.SlotEmployer, newID)

		rec := contradiction.Open(thread, facts.SlotEmployer, oldID, newID, "microsoft", "amazon", contradiction.TypeConflict, 0.4, 0.9, 0.3, 0.9, 0.3, time.Now())
		_, err = ledger.Record(ctx, rec)
		require.NoError(t, err)

		require.NoError(t, orch.ResetThread(ctx, thread, orchestrator.ResetLedger))

		open, err := ledger.FindOpen(ctx, thread)
		require.NoError(t, err)
		assert.Empty(t, open)

		stored, err := memStore.GetBySlot(ctx, thread, facts.SlotEmployer)
		require.NoError(t, err)
		assert.NotEmpty(t, stored, "reset target=ledger must not touch the memory store")
	})

	t.Run("all reuses the thread id as if fresh", func(t *testing.T) {
		orch, ledger, memStore, _, thread := newHarnessWithLedger(t, &fakeGenerator{response: "ok"})
		_, err := orch.IngestTurn(ctx, thread, "I work at acme", orchestrator.TurnOptions{StoreAssertion: true})
		require.NoError(t, err)

		require.NoError(t, orch.ResetThread(ctx, thread, orchestrator.ResetAll))

		stored, err := memStore.GetBySlot(ctx, thread, facts.SlotEmployer)
		require.NoError(t, err)
		assert.Empty(t, stored)

		open, err := ledger.FindOpen(ctx, thread)
		require.NoError(t, err)
		assert.Empty(t, open)

		report, err := orch.IngestTurn(ctx, thread, "where do I work?", orchestrator.TurnOptions{})
		require.NoError(t, err)
		assert.Equal(t, orchestrator.RefusalNone, report.RefusalReason)
	})
}
