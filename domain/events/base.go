package events

import (
	"time"

	"groundedmemory/domain/ids"
)

// DomainEvent is the base interface for all domain events raised by the
// memory and contradiction aggregates. Events represent something that has
// already happened; they are never used to decide whether something may
// happen.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Memory events

// MemoryCreated is raised when a new memory is inserted (the source trust cap is
// applied at construction time, before this event is raised).
type MemoryCreated struct {
	BaseEvent
	MemoryID ids.MemoryID `json:"memory_id"`
	ThreadID ids.ThreadID `json:"thread_id"`
	Source   string       `json:"source"`
}

func NewMemoryCreated(memoryID ids.MemoryID, threadID ids.ThreadID, source string, timestamp time.Time) MemoryCreated {
	return MemoryCreated{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   "memory.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: memoryID,
		ThreadID: threadID,
		Source:   source,
	}
}

// MemorySuperseded is raised when a memory is superseded by a refinement:
// never a destructive overwrite, always a link.
type MemorySuperseded struct {
	BaseEvent
	OldMemoryID ids.MemoryID `json:"old_memory_id"`
	NewMemoryID ids.MemoryID `json:"new_memory_id"`
}

func NewMemorySuperseded(oldID, newID ids.MemoryID, timestamp time.Time) MemorySuperseded {
	return MemorySuperseded{
		BaseEvent: BaseEvent{
			AggregateID: oldID.String(),
			EventType:   "memory.superseded",
			Timestamp:   timestamp,
			Version:     1,
		},
		OldMemoryID: oldID,
		NewMemoryID: newID,
	}
}

// MemoryTrustAdjusted is raised whenever trust is updated, independent of
// any confidence change.
type MemoryTrustAdjusted struct {
	BaseEvent
	MemoryID ids.MemoryID `json:"memory_id"`
	OldTrust float64      `json:"old_trust"`
	NewTrust float64      `json:"new_trust"`
}

func NewMemoryTrustAdjusted(memoryID ids.MemoryID, oldTrust, newTrust float64, timestamp time.Time) MemoryTrustAdjusted {
	return MemoryTrustAdjusted{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   "memory.trust_adjusted",
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: memoryID,
		OldTrust: oldTrust,
		NewTrust: newTrust,
	}
}

// MemoryConfidenceAdjusted is raised whenever confidence is updated,
// independent of any trust change.
type MemoryConfidenceAdjusted struct {
	BaseEvent
	MemoryID      ids.MemoryID `json:"memory_id"`
	OldConfidence float64      `json:"old_confidence"`
	NewConfidence float64      `json:"new_confidence"`
}

func NewMemoryConfidenceAdjusted(memoryID ids.MemoryID, oldConf, newConf float64, timestamp time.Time) MemoryConfidenceAdjusted {
	return MemoryConfidenceAdjusted{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   "memory.confidence_adjusted",
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID:      memoryID,
		OldConfidence: oldConf,
		NewConfidence: newConf,
	}
}

// MemorySoftDeleted is raised when a memory is marked inactive. The memory
// row is never physically removed.
type MemorySoftDeleted struct {
	BaseEvent
	MemoryID ids.MemoryID `json:"memory_id"`
}

func NewMemorySoftDeleted(memoryID ids.MemoryID, timestamp time.Time) MemorySoftDeleted {
	return MemorySoftDeleted{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   "memory.soft_deleted",
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID: memoryID,
	}
}

// InvariantClamped is raised when a caller-proposed value violated an
// invariant and was silently clamped rather than rejected. Monitoring
// and test suites assert the count of these is zero.
type InvariantClamped struct {
	BaseEvent
	MemoryID  ids.MemoryID `json:"memory_id"`
	Invariant string       `json:"invariant"`
	Requested float64      `json:"requested"`
	Clamped   float64      `json:"clamped"`
}

func NewInvariantClamped(memoryID ids.MemoryID, invariant string, requested, clamped float64, timestamp time.Time) InvariantClamped {
	return InvariantClamped{
		BaseEvent: BaseEvent{
			AggregateID: memoryID.String(),
			EventType:   "memory.invariant_clamped",
			Timestamp:   timestamp,
			Version:     1,
		},
		MemoryID:  memoryID,
		Invariant: invariant,
		Requested: requested,
		Clamped:   clamped,
	}
}

// Contradiction / ledger events

// ContradictionOpened is raised when the detector fires a new contradiction
// record, always before trust of the conflicting pair is adjusted.
type ContradictionOpened struct {
	BaseEvent
	ContradictionID ids.ContradictionID `json:"contradiction_id"`
	ThreadID        ids.ThreadID        `json:"thread_id"`
	Slot            string              `json:"slot"`
	Type            string              `json:"type"`
}

func NewContradictionOpened(id ids.ContradictionID, threadID ids.ThreadID, slot, ctype string, timestamp time.Time) ContradictionOpened {
	return ContradictionOpened{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   "contradiction.opened",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContradictionID: id,
		ThreadID:        threadID,
		Slot:            slot,
		Type:            ctype,
	}
}

// ContradictionStatusChanged is raised on every FSM transition. The ledger
// is append-only: this event is the only record of a status change, there
// is no destructive update.
type ContradictionStatusChanged struct {
	BaseEvent
	ContradictionID ids.ContradictionID `json:"contradiction_id"`
	OldStatus       string              `json:"old_status"`
	NewStatus       string              `json:"new_status"`
	Method          string              `json:"method,omitempty"`
	WinningMemoryID string              `json:"winning_memory_id,omitempty"`
}

func NewContradictionStatusChanged(id ids.ContradictionID, oldStatus, newStatus, method, winningMemoryID string, timestamp time.Time) ContradictionStatusChanged {
	return ContradictionStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   "contradiction.status_changed",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContradictionID: id,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		Method:          method,
		WinningMemoryID: winningMemoryID,
	}
}
