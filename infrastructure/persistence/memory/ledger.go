package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"
)

// Ledger is an in-process, mutex-guarded implementation of ports.Ledger,
// mirroring Store's sync.RWMutex-guarded map shape (operation_store.go).
type Ledger struct {
	mu      sync.RWMutex
	records map[string]map[string]*contradiction.Record // thread id -> contradiction id -> record
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]map[string]*contradiction.Record)}
}

func (l *Ledger) Record(ctx context.Context, r *contradiction.Record) (ids.ContradictionID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tid := r.ThreadID().String()
	if l.records[tid] == nil {
		l.records[tid] = make(map[string]*contradiction.Record)
	}
	l.records[tid][r.ID().String()] = r
	return r.ID(), nil
}

// Get looks up a single contradiction record by id, the primitive the
// explicit resolution entry point needs before it can transition a record
// outside of the assertion-driven path.
func (l *Ledger) Get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	thread := l.records[threadID.String()]
	if thread == nil {
		return nil, fmt.Errorf("ledger: unknown thread %s", threadID.String())
	}
	r, ok := thread[id.String()]
	if !ok {
		return nil, fmt.Errorf("ledger: contradiction %s not found", id.String())
	}
	return r, nil
}

func (l *Ledger) FindOpen(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*contradiction.Record
	for _, r := range l.records[threadID.String()] {
		if r.Status() == contradiction.StatusOpen || r.Status() == contradiction.StatusResolving {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt().Before(out[j].DetectedAt()) })
	return out, nil
}

func (l *Ledger) HasOpenForMemory(ctx context.Context, threadID ids.ThreadID, memID ids.MemoryID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.records[threadID.String()] {
		if r.Status() != contradiction.StatusOpen && r.Status() != contradiction.StatusResolving {
			continue
		}
		if r.OldMemoryID().Equals(memID) || r.NewMemoryID().Equals(memID) {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) UpdateStatus(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, newStatus contradiction.Status, resolution *contradiction.Resolution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	thread := l.records[threadID.String()]
	if thread == nil {
		return fmt.Errorf("ledger: unknown thread %s", threadID.String())
	}
	r, ok := thread[id.String()]
	if !ok {
		return fmt.Errorf("ledger: contradiction %s not found", id.String())
	}
	if r.Status() == newStatus {
		return nil
	}
	now := time.Now()
	if resolution != nil && !resolution.ResolvedAt.IsZero() {
		now = resolution.ResolvedAt
	}
	return r.TransitionTo(newStatus, resolution, now)
}

// ResolveFromAssertion is implemented at the application/ledger.Service
// layer, which owns the FSM policy (which side wins, which method to
// stamp). This backend only needs to support the lower-level primitives
// Service composes; it satisfies ports.Ledger's method for direct callers
// that bypass the service, delegating to the same scan-and-match logic.
func (l *Ledger) ResolveFromAssertion(ctx context.Context, threadID ids.ThreadID, newFacts map[facts.Slot]facts.ExtractedFact, newMemoryID ids.MemoryID) ([]ids.ContradictionID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var resolved []ids.ContradictionID
	for _, r := range l.records[threadID.String()] {
		if r.Status() != contradiction.StatusOpen {
			continue
		}
		fact, ok := newFacts[r.Slot()]
		if !ok {
			continue
		}
		var winner ids.MemoryID
		switch fact.Value {
		case r.NewValue():
			winner = r.NewMemoryID()
		case r.OldValue():
			winner = r.OldMemoryID()
		default:
			continue
		}
		res := &contradiction.Resolution{
			Method:          contradiction.MethodUserClarified,
			WinningMemoryID: winner,
		}
		if err := r.TransitionTo(contradiction.StatusResolved, res, r.UpdatedAt()); err != nil {
			return resolved, err
		}
		resolved = append(resolved, r.ID())
	}
	_ = newMemoryID
	return resolved, nil
}

func (l *Ledger) GetResolved(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*contradiction.Record
	for _, r := range l.records[threadID.String()] {
		if r.Status() == contradiction.StatusResolved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Ledger) Summarize(ctx context.Context, threadID ids.ThreadID) (ports.LedgerSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var summary ports.LedgerSummary
	for _, r := range l.records[threadID.String()] {
		summary.Total++
		switch r.Status() {
		case contradiction.StatusOpen:
			summary.Open++
		case contradiction.StatusResolving:
			summary.Resolving++
		case contradiction.StatusResolved:
			summary.Resolved++
		case contradiction.StatusAccepted:
			summary.Accepted++
		case contradiction.StatusArchived:
			summary.Archived++
		}
		if r.Type() == contradiction.TypeDuplicate {
			summary.Duplicates++
		}
	}
	return summary, nil
}

func (l *Ledger) Reset(ctx context.Context, threadID ids.ThreadID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, threadID.String())
	return nil
}
