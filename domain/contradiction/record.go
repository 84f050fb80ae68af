package contradiction

import (
	"time"

	"groundedmemory/domain/events"
	"groundedmemory/domain/facts"
	"groundedmemory/domain/ids"

	apperrors "groundedmemory/pkg/errors"
)

// Type classifies why a contradiction was raised.
type Type string

const (
	TypeRevision  Type = "REVISION"
	TypeTemporal  Type = "TEMPORAL"
	TypeConflict  Type = "CONFLICT"
	TypeDuplicate Type = "DUPLICATE"
)

// Resolution method constants.
const (
	MethodUserClarified = "user_clarified"
	MethodReplaced      = "replaced"
	MethodAccepted      = "accepted_both"
)

// Resolution captures how and when a contradiction was settled.
type Resolution struct {
	Method          string
	MessageID       string
	ResolvedAt      time.Time
	WinningMemoryID ids.MemoryID
}

// Record is a typed conflict between two memories on the same slot.
// Status transitions are append-only: every change is recorded as a
// ContradictionStatusChanged event, never a destructive edit.
type Record struct {
	id       ids.ContradictionID
	threadID ids.ThreadID

	slot        facts.Slot
	oldMemoryID ids.MemoryID
	newMemoryID ids.MemoryID
	oldValue    string
	newValue    string

	ctype  Type
	status Status

	drift     float64
	trustOld  float64
	trustNew  float64
	confOld   float64
	confNew   float64

	detectedAt time.Time
	updatedAt  time.Time

	resolution *Resolution

	uncommittedEvents []events.DomainEvent
}

// Open creates a new OPEN contradiction record and raises ContradictionOpened.
func Open(
	threadID ids.ThreadID,
	slot facts.Slot,
	oldMemoryID, newMemoryID ids.MemoryID,
	oldValue, newValue string,
	ctype Type,
	drift, trustOld, trustNew, confOld, confNew float64,
	now time.Time,
) *Record {
	r := &Record{
		id:          ids.NewContradictionID(),
		threadID:    threadID,
		slot:        slot,
		oldMemoryID: oldMemoryID,
		newMemoryID: newMemoryID,
		oldValue:    oldValue,
		newValue:    newValue,
		ctype:       ctype,
		status:      StatusOpen,
		drift:       drift,
		trustOld:    trustOld,
		trustNew:    trustNew,
		confOld:     confOld,
		confNew:     confNew,
		detectedAt:  now,
		updatedAt:   now,
	}
	r.addEvent(events.NewContradictionOpened(r.id, threadID, string(slot), string(ctype), now))
	return r
}

// Reconstruct rehydrates a Record from storage without raising events.
func Reconstruct(
	id ids.ContradictionID,
	threadID ids.ThreadID,
	slot facts.Slot,
	oldMemoryID, newMemoryID ids.MemoryID,
	oldValue, newValue string,
	ctype Type,
	status Status,
	drift, trustOld, trustNew, confOld, confNew float64,
	detectedAt, updatedAt time.Time,
	resolution *Resolution,
) *Record {
	return &Record{
		id:          id,
		threadID:    threadID,
		slot:        slot,
		oldMemoryID: oldMemoryID,
		newMemoryID: newMemoryID,
		oldValue:    oldValue,
		newValue:    newValue,
		ctype:       ctype,
		status:      status,
		drift:       drift,
		trustOld:    trustOld,
		trustNew:    trustNew,
		confOld:     confOld,
		confNew:     confNew,
		detectedAt:  detectedAt,
		updatedAt:   updatedAt,
		resolution:  resolution,
	}
}

func (r *Record) ID() ids.ContradictionID { return r.id }
func (r *Record) ThreadID() ids.ThreadID  { return r.threadID }
func (r *Record) Slot() facts.Slot        { return r.slot }
func (r *Record) OldMemoryID() ids.MemoryID { return r.oldMemoryID }
func (r *Record) NewMemoryID() ids.MemoryID { return r.newMemoryID }
func (r *Record) OldValue() string        { return r.oldValue }
func (r *Record) NewValue() string        { return r.newValue }
func (r *Record) Type() Type              { return r.ctype }
func (r *Record) Status() Status          { return r.status }
func (r *Record) Drift() float64          { return r.drift }
func (r *Record) DetectedAt() time.Time   { return r.detectedAt }
func (r *Record) UpdatedAt() time.Time    { return r.updatedAt }
func (r *Record) Resolution() *Resolution { return r.resolution }

// TransitionTo moves the record to a new status, validating the edge
// against the FSM (CanTransition) and raising ContradictionStatusChanged.
// RESOLVED/ACCEPTED transitions require a resolution; passing nil for those
// targets is a programmer error.
func (r *Record) TransitionTo(newStatus Status, resolution *Resolution, now time.Time) error {
	if !CanTransition(r.status, newStatus) {
		return apperrors.NewInvariantViolationError(
			"contradiction-fsm",
			"illegal transition "+string(r.status)+" -> "+string(newStatus),
		)
	}
	if (newStatus == StatusResolved || newStatus == StatusAccepted) && resolution == nil {
		return apperrors.NewInvariantViolationError(
			"contradiction-fsm",
			"transition to "+string(newStatus)+" requires a resolution",
		)
	}

	old := r.status
	r.status = newStatus
	r.updatedAt = now
	if resolution != nil {
		r.resolution = resolution
	}

	method := ""
	winning := ""
	if resolution != nil {
		method = resolution.Method
		winning = resolution.WinningMemoryID.String()
	}
	r.addEvent(events.NewContradictionStatusChanged(r.id, string(old), string(newStatus), method, winning, now))
	return nil
}

func (r *Record) addEvent(e events.DomainEvent) {
	r.uncommittedEvents = append(r.uncommittedEvents, e)
}

func (r *Record) UncommittedEvents() []events.DomainEvent { return r.uncommittedEvents }

func (r *Record) MarkEventsCommitted() { r.uncommittedEvents = nil }
