// Package memory defines the Memory item entity: private fields, paired
// New/Reconstruct constructors, domain events collected on the aggregate
// and drained by the unit of work after a successful commit.
package memory

import (
	"time"

	"groundedmemory/domain/events"
	"groundedmemory/domain/ids"
)

// Memory is the unit of stored knowledge. Every mutation on a Memory
// either clamps to an invariant or returns an error; there is no path that
// destructively overwrites a stored statement or couples trust to
// confidence.
type Memory struct {
	id         ids.MemoryID
	threadID   ids.ThreadID
	text       string
	vector     Vector
	modelID    string
	source     Source
	trust      float64
	confidence float64
	createdAt  time.Time
	updatedAt  time.Time
	supersedes *ids.MemoryID
	active     bool

	uncommittedEvents []events.DomainEvent
}

// New constructs a brand-new Memory, enforcing the per-source trust cap and
// raising MemoryCreated, and an InvariantClamped event if the caller's
// proposed trust exceeded the source's cap.
func New(threadID ids.ThreadID, text string, vector Vector, source Source, trust, confidence float64, modelID string, now time.Time) (*Memory, error) {
	if !source.Valid() {
		return nil, errInvalidSource(source)
	}
	if text == "" {
		return nil, errEmptyText()
	}

	m := &Memory{
		id:         ids.NewMemoryID(),
		threadID:   threadID,
		text:       text,
		vector:     vector,
		modelID:    modelID,
		source:     source,
		trust:      clamp01(trust),
		confidence: clamp01(confidence),
		createdAt:  now,
		updatedAt:  now,
		active:     true,
	}

	if cap, capped := source.TrustCap(); capped && m.trust > cap {
		requested := m.trust
		m.trust = cap
		m.addEvent(events.NewInvariantClamped(m.id, "source_trust_cap", requested, cap, now))
	}

	m.addEvent(events.NewMemoryCreated(m.id, threadID, string(source), now))
	return m, nil
}

// Reconstruct rehydrates a Memory from storage without raising any events.
func Reconstruct(
	id ids.MemoryID,
	threadID ids.ThreadID,
	text string,
	vector Vector,
	modelID string,
	source Source,
	trust, confidence float64,
	createdAt, updatedAt time.Time,
	supersedes *ids.MemoryID,
	active bool,
) *Memory {
	return &Memory{
		id:         id,
		threadID:   threadID,
		text:       text,
		vector:     vector,
		modelID:    modelID,
		source:     source,
		trust:      trust,
		confidence: confidence,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
		supersedes: supersedes,
		active:     active,
	}
}

func (m *Memory) ID() ids.MemoryID       { return m.id }
func (m *Memory) ThreadID() ids.ThreadID { return m.threadID }
func (m *Memory) Text() string           { return m.text }
func (m *Memory) Vector() Vector         { return m.vector }
func (m *Memory) ModelID() string        { return m.modelID }
func (m *Memory) Source() Source         { return m.source }
func (m *Memory) Trust() float64         { return m.trust }
func (m *Memory) Confidence() float64    { return m.confidence }
func (m *Memory) CreatedAt() time.Time   { return m.createdAt }
func (m *Memory) UpdatedAt() time.Time   { return m.updatedAt }
func (m *Memory) Active() bool           { return m.active }

// Supersedes returns the id this memory refines, if any.
func (m *Memory) Supersedes() (ids.MemoryID, bool) {
	if m.supersedes == nil {
		return ids.MemoryID{}, false
	}
	return *m.supersedes, true
}

// SetTrust updates trust independently of confidence. It never reads
// or writes the confidence field.
func (m *Memory) SetTrust(trust float64, now time.Time) {
	clamped := clamp01(trust)
	if cap, capped := m.source.TrustCap(); capped && clamped > cap {
		m.addEvent(events.NewInvariantClamped(m.id, "source_trust_cap", clamped, cap, now))
		clamped = cap
	}
	if clamped == m.trust {
		return
	}
	old := m.trust
	m.trust = clamped
	m.updatedAt = now
	m.addEvent(events.NewMemoryTrustAdjusted(m.id, old, clamped, now))
}

// SetConfidence updates confidence independently of trust.
func (m *Memory) SetConfidence(confidence float64, now time.Time) {
	clamped := clamp01(confidence)
	if clamped == m.confidence {
		return
	}
	old := m.confidence
	m.confidence = clamped
	m.updatedAt = now
	m.addEvent(events.NewMemoryConfidenceAdjusted(m.id, old, clamped, now))
}

// MarkSuperseded links this memory to the refinement that replaces it. The
// memory itself is never deleted or mutated in place; this only
// records the link so retrieval/deprecation filtering can find it.
func (m *Memory) MarkSuperseded(newID ids.MemoryID, now time.Time) {
	m.updatedAt = now
	m.addEvent(events.NewMemorySuperseded(m.id, newID, now))
}

// LinkSupersedes records, on a newly constructed refinement, which prior
// memory it refines. Used by the store's Supersede operation when
// constructing the replacement memory.
func (m *Memory) LinkSupersedes(oldID ids.MemoryID) {
	id := oldID
	m.supersedes = &id
}

// SoftDelete marks the memory inactive. Ledger entries referencing it are
// untouched: soft-delete never purges history.
func (m *Memory) SoftDelete(now time.Time) {
	if !m.active {
		return
	}
	m.active = false
	m.updatedAt = now
	m.addEvent(events.NewMemorySoftDeleted(m.id, now))
}

func (m *Memory) addEvent(e events.DomainEvent) {
	m.uncommittedEvents = append(m.uncommittedEvents, e)
}

// UncommittedEvents returns the events raised since construction or the
// last MarkEventsCommitted call.
func (m *Memory) UncommittedEvents() []events.DomainEvent {
	return m.uncommittedEvents
}

// MarkEventsCommitted clears the uncommitted event buffer after a
// successful persistence write.
func (m *Memory) MarkEventsCommitted() {
	m.uncommittedEvents = nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
