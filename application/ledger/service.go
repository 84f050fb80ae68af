// Package ledger implements the contradiction ledger service: the
// lifecycle FSM over contradiction records, wrapping a ports.Ledger
// persistence port. Status changes are events, never destructive edits.
package ledger

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"groundedmemory/application/ports"
	"groundedmemory/domain/contradiction"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"

	apperrors "groundedmemory/pkg/errors"
)

// Service is the ledger façade: every mutation goes through here so the
// FSM rules are enforced in one place regardless of persistence backend.
type Service struct {
	store  ports.Ledger
	clock  ports.Clock
	logger *zap.Logger
}

func New(store ports.Ledger, clock ports.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// Record persists a freshly opened contradiction (already constructed via
// contradiction.Open by the detector) and returns its id.
func (s *Service) Record(ctx context.Context, r *contradiction.Record) (ids.ContradictionID, error) {
	id, err := s.store.Record(ctx, r)
	if err != nil {
		return ids.ContradictionID{}, apperrors.NewStorageUnavailableError("ledger", err)
	}
	s.logger.Info("contradiction recorded",
		zap.String("contradiction_id", id.String()),
		zap.String("slot", string(r.Slot())),
		zap.String("type", string(r.Type())),
		zap.Float64("drift", r.Drift()),
	)
	return id, nil
}

// Get loads a single contradiction record by id.
func (s *Service) Get(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID) (*contradiction.Record, error) {
	rec, err := s.store.Get(ctx, threadID, id)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("ledger", err)
	}
	return rec, nil
}

// FindOpen lists every OPEN or RESOLVING record for a thread, the set the
// disclosure enforcer consults before every response.
func (s *Service) FindOpen(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	recs, err := s.store.FindOpen(ctx, threadID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("ledger", err)
	}
	return recs, nil
}

// HasOpenForMemory reports whether a specific memory is implicated in an
// unresolved contradiction, the check retrieval's deprecated filter relies
// on.
func (s *Service) HasOpenForMemory(ctx context.Context, threadID ids.ThreadID, memID ids.MemoryID) (bool, error) {
	ok, err := s.store.HasOpenForMemory(ctx, threadID, memID)
	if err != nil {
		return false, apperrors.NewStorageUnavailableError("ledger", err)
	}
	return ok, nil
}

// ResolveContradiction is the explicit resolve_contradiction(thread_id,
// contradiction_id, method, winning_side) entry point: a
// caller-driven resolution event, as opposed to ResolveFromAssertion's
// scan-and-match inference from new facts. method must be one of
// contradiction.MethodUserClarified, MethodReplaced, or MethodAccepted;
// the first two transition the record to RESOLVED, MethodAccepted to
// ACCEPTED, the "user explicitly keeps both" branch. winningSide
// becomes the record's WinningMemoryID for every method; retrieval
// deprecates the losing side only for the first two, so under
// MethodAccepted both sides remain active.
func (s *Service) ResolveContradiction(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, method string, winningSide ids.MemoryID) error {
	rec, err := s.store.Get(ctx, threadID, id)
	if err != nil {
		return apperrors.NewStorageUnavailableError("ledger", err)
	}

	var newStatus contradiction.Status
	switch method {
	case contradiction.MethodUserClarified, contradiction.MethodReplaced:
		newStatus = contradiction.StatusResolved
	case contradiction.MethodAccepted:
		newStatus = contradiction.StatusAccepted
	default:
		return apperrors.NewValidationError("ledger: unknown resolution method " + method)
	}

	now := s.clock.Now()
	resolution := &contradiction.Resolution{
		Method:          method,
		ResolvedAt:      now,
		WinningMemoryID: winningSide,
	}
	if err := rec.TransitionTo(newStatus, resolution, now); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, threadID, id, newStatus, resolution); err != nil {
		return apperrors.NewStorageUnavailableError("ledger", err)
	}
	s.logger.Info("contradiction resolved explicitly",
		zap.String("contradiction_id", id.String()),
		zap.String("method", method),
		zap.String("new_status", string(newStatus)),
	)
	return nil
}

// UpdateStatus hands a status change to the persistence port, which loads
// the record, applies the FSM transition (the legality check lives on
// contradiction.Record) and stores the result; this method adds the error
// mapping and the log line.
func (s *Service) UpdateStatus(ctx context.Context, threadID ids.ThreadID, id ids.ContradictionID, newStatus contradiction.Status, resolution *contradiction.Resolution) error {
	if err := s.store.UpdateStatus(ctx, threadID, id, newStatus, resolution); err != nil {
		return apperrors.NewStorageUnavailableError("ledger", err)
	}
	s.logger.Info("contradiction status changed",
		zap.String("contradiction_id", id.String()),
		zap.String("new_status", string(newStatus)),
	)
	return nil
}

// ResolveFromAssertion scans every OPEN record for the thread; if the
// caller's new facts re-assert either side's value for that record's slot,
// the record transitions to RESOLVED with method user_clarified and the
// re-asserted side recorded as winning. Re-running with the same new
// facts against an already-RESOLVED record is a no-op (FindOpen excludes
// it), so the operation is idempotent.
func (s *Service) ResolveFromAssertion(ctx context.Context, threadID ids.ThreadID, newFacts map[facts.Slot]facts.ExtractedFact, newMemoryID ids.MemoryID) ([]ids.ContradictionID, error) {
	open, err := s.store.FindOpen(ctx, threadID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("ledger", err)
	}

	var resolved []ids.ContradictionID
	now := s.clock.Now()

	for _, rec := range open {
		fact, ok := newFacts[rec.Slot()]
		if !ok {
			continue
		}
		value := normalize(fact.Value)

		var winner ids.MemoryID
		switch value {
		case normalize(rec.NewValue()):
			winner = rec.NewMemoryID()
		case normalize(rec.OldValue()):
			winner = rec.OldMemoryID()
		default:
			continue
		}

		resolution := &contradiction.Resolution{
			Method:          contradiction.MethodUserClarified,
			ResolvedAt:      now,
			WinningMemoryID: winner,
		}
		if err := rec.TransitionTo(contradiction.StatusResolved, resolution, now); err != nil {
			return resolved, err
		}
		if err := s.store.UpdateStatus(ctx, threadID, rec.ID(), contradiction.StatusResolved, resolution); err != nil {
			return resolved, apperrors.NewStorageUnavailableError("ledger", err)
		}
		s.logger.Info("contradiction resolved from assertion",
			zap.String("contradiction_id", rec.ID().String()),
			zap.String("slot", string(rec.Slot())),
			zap.String("winning_memory_id", winner.String()),
		)
		resolved = append(resolved, rec.ID())
	}

	_ = newMemoryID // retained for the ports.Ledger signature; not needed once the winning side is determined by value match
	return resolved, nil
}

// GetResolved lists every RESOLVED record for a thread (audit/testing
// use).
func (s *Service) GetResolved(ctx context.Context, threadID ids.ThreadID) ([]*contradiction.Record, error) {
	recs, err := s.store.GetResolved(ctx, threadID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("ledger", err)
	}
	return recs, nil
}

// Summarize returns the read-only audit view. Never consulted by a
// disclosure decision; DUPLICATE records stay silent.
func (s *Service) Summarize(ctx context.Context, threadID ids.ThreadID) (ports.LedgerSummary, error) {
	summary, err := s.store.Summarize(ctx, threadID)
	if err != nil {
		return ports.LedgerSummary{}, apperrors.NewStorageUnavailableError("ledger", err)
	}
	return summary, nil
}

// Reset destructively clears a thread's ledger. Test-harness only.
func (s *Service) Reset(ctx context.Context, threadID ids.ThreadID) error {
	if err := s.store.Reset(ctx, threadID); err != nil {
		return apperrors.NewStorageUnavailableError("ledger", err)
	}
	return nil
}

func normalize(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
