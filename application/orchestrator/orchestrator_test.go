package orchestrator_test

import (
	"context"
	"errors"
	"strings"
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

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ ports.GenerationConstraints) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type brokenMemoryStore struct{}

func (brokenMemoryStore) Insert(context.Context, *memory.Memory) (ids.MemoryID, error) {
	return ids.MemoryID{}, errors.New("unreachable")
}
func (brokenMemoryStore) Get(context.Context, ids.ThreadID, ids.MemoryID) (*memory.Memory, error) {
	return nil, errors.New("unreachable")
}
func (brokenMemoryStore) GetBySlot(context.Context, ids.ThreadID, facts.Slot) ([]*memory.Memory, error) {
	return nil, errors.New("unreachable")
}
func (brokenMemoryStore) Retrieve(context.Context, ports.RetrievalQuery) ([]ports.ScoredMemory, error) {
	return nil, errors.New("store unreachable")
}
func (brokenMemoryStore) Supersede(context.Context, ids.ThreadID, ids.MemoryID, *memory.Memory) (ids.MemoryID, error) {
	return ids.MemoryID{}, errors.New("unreachable")
}
func (brokenMemoryStore) SoftDelete(context.Context, ids.ThreadID, ids.MemoryID) error {
	return errors.New("unreachable")
}
func (brokenMemoryStore) Reset(context.Context, ids.ThreadID) error { return errors.New("unreachable") }

func newHarness(t *testing.T, gen ports.Generator) (*orchestrator.Orchestrator, ports.MemoryStore, ids.ThreadID) {
	t.Helper()
	cfg := config.DefaultDomainConfig()

	memStore := memstore.New(cfg)
	ledgerStore := memstore.NewLedger()
	clock := &common.FixedClock{At: time.Now()}

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
		memStore, ledgerSvc, embedding.NewHashingEmbedder(), gen, extractor, nil,
		det, gate, enforcer, questioner, flagsReg, locks, clock, cfg, nil,
	)

	thread, err := ids.NewThreadID("thread-orchestrator")
	require.NoError(t, err)
	return orch, memStore, thread
}

func TestIngestTurn_GroundedAnswerFromPriorMemory(t *testing.T) {
	gen := &fakeGenerator{response: "You work at acme corp."}
	orch, memStore, thread := newHarness(t, gen)

	emb := embedding.NewHashingEmbedder()
	vec, modelID, err := emb.Embed(context.Background(), "I work at acme corp")
	require.NoError(t, err)
	m, err := memory.New(thread, "I work at acme corp", vec, memory.SourceUser, 0.9, 0.9, modelID, time.Now())
	require.NoError(t, err)
	_, err = memStore.Insert(context.Background(), m)
	require.NoError(t, err)

	report, err := orch.IngestTurn(context.Background(), thread, "where do I work?", orchestrator.TurnOptions{})
	require.NoError(t, err)
	require.False(t, report.Refused())
	assert.True(t, report.Grounded)
	assert.Equal(t, gates.OutcomePassGrounded, report.GateOutcome)
}

func TestIngestTurn_GeneratorErrorRefusesWithClarifyingQuestion(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("generator down")}
	orch, _, thread := newHarness(t, gen)

	report, err := orch.IngestTurn(context.Background(), thread, "where do I work?", orchestrator.TurnOptions{})
	require.NoError(t, err)
	assert.True(t, report.Refused())
	assert.Equal(t, orchestrator.RefusalGeneratorUnavailable, report.RefusalReason)
	assert.NotEmpty(t, report.ClarifyingQuestion)
}

func TestIngestTurn_StorageErrorRefuses(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	clock := &common.FixedClock{At: time.Now()}
	extractor, err := extraction.New()
	require.NoError(t, err)
	ledgerSvc := ledgerapp.New(memstore.NewLedger(), clock, nil)
	flagsReg, err := flags.New()
	require.NoError(t, err)

	orch := orchestrator.New(
		brokenMemoryStore{}, ledgerSvc, embedding.NewHashingEmbedder(), &fakeGenerator{response: "hi"}, extractor, nil,
		detection.New(cfg), gates.New(cfg), disclosure.New(), selfquestion.New(cfg), flagsReg, threadlock.NewRegistry(), clock, cfg, nil,
	)
	thread, err := ids.NewThreadID("thread-broken")
	require.NoError(t, err)

	report, err := orch.IngestTurn(context.Background(), thread, "where do I work?", orchestrator.TurnOptions{})
	require.NoError(t, err)
	assert.True(t, report.Refused())
	assert.Equal(t, orchestrator.RefusalStorageUnavailable, report.RefusalReason)
}

func TestIngestTurn_StoresAssertionWhenRequested(t *testing.T) {
	gen := &fakeGenerator{response: "Got it."}
	orch, memStore, thread := newHarness(t, gen)

	_, err := orch.IngestTurn(context.Background(), thread, "I work at acme corp", orchestrator.TurnOptions{StoreAssertion: true})
	require.NoError(t, err)

	stored, err := memStore.GetBySlot(context.Background(), thread, "employer")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

// TestIngestTurn_UngroundedCandidateRejectedWithNoMemory covers the empty-
// retrieval path: the generator asserts a fact nothing supports, the gates
// reject with the neutral no-memory outcome, self-questioning offers to
// store it, and no memory is written.
func TestIngestTurn_UngroundedCandidateRejectedWithNoMemory(t *testing.T) {
	gen := &fakeGenerator{response: "You work at Amazon."}
	orch, memStore, thread := newHarness(t, gen)

	report, err := orch.IngestTurn(context.Background(), thread, "where do I work?", orchestrator.TurnOptions{})
	require.NoError(t, err)
	require.False(t, report.Refused())

	assert.Equal(t, gates.OutcomeRejectNoMemory, report.GateOutcome)
	assert.False(t, report.Grounded)
	assert.Equal(t, "I don't have that yet — would you like me to remember it?", report.ClarifyingQuestion)

	stored, err := memStore.GetBySlot(context.Background(), thread, "employer")
	require.NoError(t, err)
	assert.Empty(t, stored, "a rejected ungrounded candidate must not write memory")
}

// stubEmbedder assigns each text a unit vector on a fixed axis keyed by a
// distinguishing token, so tests can place two statements at a chosen
// drift without depending on the hashing embedder's geometry.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) (memory.Vector, string, error) {
	axis := 2
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "blue"):
		axis = 0
	case strings.Contains(lower, "green"):
		axis = 1
	}
	raw := make([]float64, memory.Dim)
	raw[axis] = 1.0
	v, err := memory.NewVector(raw)
	if err != nil {
		return nil, "", err
	}
	return v, "stub-v1", nil
}

// TestIngestTurn_UpdateOpensRevisionAndDisclosesCaveat walks the simple
// update flow turn by turn: store a fact, correct it, then ask it back and
// expect the answer to carry a caveat naming the superseded value.
func TestIngestTurn_UpdateOpensRevisionAndDisclosesCaveat(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	clock := &common.FixedClock{At: time.Now()}
	extractor, err := extraction.New()
	require.NoError(t, err)
	memStore := memstore.New(cfg)
	ledgerStore := memstore.NewLedger()
	ledgerSvc := ledgerapp.New(ledgerStore, clock, nil)
	flagsReg, err := flags.New()
	require.NoError(t, err)
	gen := &fakeGenerator{}

	orch := orchestrator.New(
		memStore, ledgerSvc, stubEmbedder{}, gen, extractor, nil,
		detection.New(cfg), gates.New(cfg), disclosure.New(), selfquestion.New(cfg), flagsReg, threadlock.NewRegistry(), clock, cfg, nil,
	)
	thread, err := ids.NewThreadID("thread-update")
	require.NoError(t, err)
	ctx := context.Background()

	gen.response = "Noted."
	first, err := orch.IngestTurn(ctx, thread, "My favorite color is blue.", orchestrator.TurnOptions{StoreAssertion: true})
	require.NoError(t, err)
	require.False(t, first.Refused())
	assert.Empty(t, first.ContradictionsNew)

	gen.response = "Understood - green it is, changed from blue."
	second, err := orch.IngestTurn(ctx, thread, "Actually my favorite color is green now.", orchestrator.TurnOptions{StoreAssertion: true})
	require.NoError(t, err)
	require.False(t, second.Refused())
	require.Len(t, second.ContradictionsNew, 1)

	rec, err := ledgerStore.Get(ctx, thread, second.ContradictionsNew[0])
	require.NoError(t, err)
	assert.Equal(t, contradiction.TypeRevision, rec.Type())
	assert.Equal(t, contradiction.StatusOpen, rec.Status())

	gen.response = "Your favorite color is green (changed from blue)."
	third, err := orch.IngestTurn(ctx, thread, "What's my favorite color?", orchestrator.TurnOptions{})
	require.NoError(t, err)
	require.False(t, third.Refused())
	assert.True(t, third.CaveatRequired)
	assert.True(t, third.CaveatPresent)
	assert.Contains(t, third.ResponseText, "green")
	assert.Contains(t, third.ResponseText, "changed from blue")
}
