// Package ports defines the hexagonal-architecture boundary between the
// governance core and everything external to it: persistence, the
// embedding model, the language generator, and the clock. The domain
// and application layers depend only on these interfaces, never on a
// concrete infrastructure package.
package ports

import (
	"context"
	"time"

	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/events"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

// MemoryStore is the persistence port for the two-axis memory model.
// Every method is thread-scoped; there is no cross-thread read path.
type MemoryStore interface {
	Insert(ctx context.Context, m *memory.Memory) (ids.MemoryID, error)
	Get(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) (*memory.Memory, error)
	GetBySlot(ctx context.Context, threadID ids.ThreadID, slot facts.Slot) ([]*memory.Memory, error)
	Retrieve(ctx context.Context, q RetrievalQuery) ([]ScoredMemory, error)
	Supersede(ctx context.Context, threadID ids.ThreadID, oldID ids.MemoryID, newMem *memory.Memory) (ids.MemoryID, error)
	SoftDelete(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) error
	// Reset destructively clears all memories for a thread. Test-harness only.
	Reset(ctx context.Context, threadID ids.ThreadID) error
}

// RetrievalQuery carries the parameters for MemoryStore.Retrieve.
type RetrievalQuery struct {
	ThreadID          ids.ThreadID
	QueryVector       memory.Vector
	K                 int
	MinTrust          float64
	ExcludeDeprecated bool
	Ledger            Ledger
}

// ScoredMemory pairs a memory with its ranking score for a given query.
type ScoredMemory struct {
	Memory *memory.Memory
	Score  float64
}

// Ledger is the persistence + lifecycle port for contradiction records.
// Status changes go through UpdateStatus, which applies an FSM transition
// (raising a ContradictionStatusChanged event); the backends store only each
// record's latest state.
type Ledger interface {
	Record(ctx context.Context, r *contradiction.Record) (ids.ContradictionID, error)
	Get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error)
	FindOpen(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error)
	HasOpenForMemory(ctx context.Context, threadID ids.ThreadID, memID ids.MemoryID) (bool, error)
	UpdateStatus(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, newStatus contradiction.Status, resolution *contradiction.Resolution) error
	ResolveFromAssertion(ctx context.Context, threadID ids.ThreadID, newFacts map[facts.Slot]facts.ExtractedFact, newMemoryID ids.MemoryID) ([]ids.ContradictionID, error)
	GetResolved(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error)
	Summarize(ctx context.Context, threadID ids.ThreadID) (LedgerSummary, error)
	// Reset destructively clears all ledger entries for a thread. Test-harness only.
	Reset(ctx context.Context, threadID ids.ThreadID) error
}

// LedgerSummary is the read-only audit view. It is never consulted by a
// disclosure decision.
type LedgerSummary struct {
	Total      int
	Open       int
	Resolving  int
	Resolved   int
	Accepted   int
	Archived   int
	Duplicates int
}

// Embedder is the outbound embedding interface, so the model can be
// swapped without touching the governance core.
type Embedder interface {
	Embed(ctx context.Context, text string) (memory.Vector, string, error) // vector, model id, error
}

// Generator is the external language generator. Constraints carry any
// required caveat phrasing the Disclosure Enforcer's pre-injection demands.
type Generator interface {
	Generate(ctx context.Context, prompt string, constraints GenerationConstraints) (string, error)
}

// GenerationConstraints bounds what the external generator may return.
type GenerationConstraints struct {
	MaxTokens        int
	RequiredCaveats  []string
	RetrievedContext []string
}

// Clock abstracts time so the core is deterministic in tests; replaying
// an identical input sequence with a fixed clock yields identical state.
type Clock interface {
	Now() time.Time
}

// EventPublisher is the sink for uncommitted aggregate events once a write
// is durably committed.
type EventPublisher interface {
	PublishBatch(ctx context.Context, evts []events.DomainEvent) error
}

// FactExtractor is the fact-extraction port, kept as an interface even
// though the core ships one implementation so tests can substitute a stub
// extractor.
type FactExtractor interface {
	Extract(text string) map[facts.Slot][]facts.ExtractedFact
}
