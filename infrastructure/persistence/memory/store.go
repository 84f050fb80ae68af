// Package memory provides an in-process, mutex-guarded implementation of
// ports.MemoryStore for tests and single-node demos: a sync.RWMutex-guarded
// map laid out per thread.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"groundedmemory/application/ports"
	"groundedmemory/domain/config"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
	"groundedmemory/domain/memory"
)

// Store is a thread-scoped, in-memory MemoryStore. Every method takes the
// same RWMutex; a single coarse lock is enough for the low volumes this
// backend serves.
type Store struct {
	mu    sync.RWMutex
	cfg   *config.DomainConfig
	items map[string]map[string]*memory.Memory // thread id -> memory id -> memory
	slots []slotEntry
}

func New(cfg *config.DomainConfig) *Store {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Store{cfg: cfg, items: make(map[string]map[string]*memory.Memory)}
}

func (s *Store) Insert(ctx context.Context, m *memory.Memory) (ids.MemoryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tid := m.ThreadID().String()
	if s.items[tid] == nil {
		s.items[tid] = make(map[string]*memory.Memory)
	}
	s.items[tid][m.ID().String()] = m
	return m.ID(), nil
}

func (s *Store) Get(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) (*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.items[threadID.String()]
	if thread == nil {
		return nil, fmt.Errorf("memory store: unknown thread %s", threadID.String())
	}
	m, ok := thread[id.String()]
	if !ok {
		return nil, fmt.Errorf("memory store: memory %s not found", id.String())
	}
	return m, nil
}

// GetBySlot returns the thread's memories that were recorded under slot via
// RecordSlot, latest-first by updated_at, looked up in the sidecar slot
// list. A memory inserted without a RecordSlot call is not returned.
func (s *Store) GetBySlot(ctx context.Context, threadID ids.ThreadID, slot facts.Slot) ([]*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.items[threadID.String()]
	slotIndex := s.slotIndex(threadID.String())
	var out []*memory.Memory
	for _, memID := range slotIndex[slot] {
		if m, ok := thread[memID]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt().After(out[j].UpdatedAt()) })
	return out, nil
}

// slotEntry tracks which memory ids were inserted under which slot, a
// sidecar index the in-memory backend keeps because memory.Memory itself
// carries no slot field (slot identity is the fact extractor's concern,
// not the memory entity's).
type slotEntry struct {
	threadID string
	slot     facts.Slot
	memoryID string
}

func (s *Store) slotIndex(threadID string) map[facts.Slot][]string {
	out := make(map[facts.Slot][]string)
	for _, e := range s.slots {
		if e.threadID == threadID {
			out[e.slot] = append(out[e.slot], e.memoryID)
		}
	}
	return out
}

// RecordSlot associates an inserted memory with the slot it was extracted
// for, so GetBySlot can answer without the domain entity itself carrying
// slot identity. Called by the orchestrator immediately after Insert.
func (s *Store) RecordSlot(threadID ids.ThreadID, slot facts.Slot, memID ids.MemoryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, slotEntry{threadID: threadID.String(), slot: slot, memoryID: memID.String()})
}

func (s *Store) Retrieve(ctx context.Context, q ports.RetrievalQuery) ([]ports.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.items[q.ThreadID.String()]
	if thread == nil {
		return nil, nil
	}

	deprecated := make(map[string]bool)
	if q.ExcludeDeprecated && q.Ledger != nil {
		resolved, err := q.Ledger.GetResolved(ctx, q.ThreadID)
		if err == nil {
			for _, rec := range resolved {
				res := rec.Resolution()
				if res == nil {
					continue
				}
				if res.Method != "user_clarified" && res.Method != "replaced" {
					continue
				}
				// The losing side is whichever of old/new is not the winner.
				if rec.OldMemoryID().String() != res.WinningMemoryID.String() {
					deprecated[rec.OldMemoryID().String()] = true
				}
				if rec.NewMemoryID().String() != res.WinningMemoryID.String() {
					deprecated[rec.NewMemoryID().String()] = true
				}
			}
		}
	}

	now := time.Now()
	scored := make([]ports.ScoredMemory, 0, len(thread))
	for _, m := range thread {
		if !m.Active() {
			continue
		}
		if m.Trust() < q.MinTrust {
			continue
		}
		isDep := deprecated[m.ID().String()]
		if q.ExcludeDeprecated && isDep {
			continue
		}
		score := s.score(q.QueryVector, m, now, isDep)
		scored = append(scored, ports.ScoredMemory{Memory: m, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Memory.UpdatedAt().Equal(scored[j].Memory.UpdatedAt()) {
			return scored[i].Memory.UpdatedAt().After(scored[j].Memory.UpdatedAt())
		}
		return scored[i].Memory.ID().String() > scored[j].Memory.ID().String()
	})

	k := q.K
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (s *Store) score(query memory.Vector, m *memory.Memory, now time.Time, deprecated bool) float64 {
	sim := 0.0
	if !query.IsZero() && !m.Vector().IsZero() {
		sim = query.Dot(m.Vector())
	}
	age := now.Sub(m.UpdatedAt())
	recency := recencyDecay(age, s.cfg.RecencyHalfLife)

	score := s.cfg.WeightSimilarity*sim +
		s.cfg.WeightTrust*m.Trust() +
		s.cfg.WeightConfidence*m.Confidence() +
		s.cfg.WeightRecency*recency

	if deprecated {
		score -= s.cfg.WeightDeprecated
	}
	return score
}

// recencyDecay implements an exponential half-life decay: 1.0 at age 0,
// 0.5 at age == halfLife.
func recencyDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	ratio := float64(age) / float64(halfLife)
	return math.Pow(2, -ratio)
}

func (s *Store) Supersede(ctx context.Context, threadID ids.ThreadID, oldID ids.MemoryID, newMem *memory.Memory) (ids.MemoryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.items[threadID.String()]
	if thread == nil {
		return ids.MemoryID{}, fmt.Errorf("memory store: unknown thread %s", threadID.String())
	}
	if _, ok := thread[oldID.String()]; !ok {
		return ids.MemoryID{}, fmt.Errorf("memory store: memory %s not found", oldID.String())
	}

	newMem.LinkSupersedes(oldID)
	thread[newMem.ID().String()] = newMem
	return newMem.ID(), nil
}

func (s *Store) SoftDelete(ctx context.Context, threadID ids.ThreadID, id ids.MemoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.items[threadID.String()]
	if thread == nil {
		return fmt.Errorf("memory store: unknown thread %s", threadID.String())
	}
	m, ok := thread[id.String()]
	if !ok {
		return fmt.Errorf("memory store: memory %s not found", id.String())
	}
	m.SoftDelete(time.Now())
	return nil
}

func (s *Store) Reset(ctx context.Context, threadID ids.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, threadID.String())
	filtered := s.slots[:0]
	for _, e := range s.slots {
		if e.threadID != threadID.String() {
			filtered = append(filtered, e)
		}
	}
	s.slots = filtered
	return nil
}
