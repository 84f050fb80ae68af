// Package ids holds the opaque identifier value objects shared across the
// domain packages (memory, facts, contradiction). Keeping them in one place
// avoids the memory/contradiction packages importing each other just to
// reference one another's keys: the ledger and the store point at each
// other by opaque id, never by shared reference.
package ids

import (
	"encoding/json"

	"github.com/google/uuid"

	apperrors "groundedmemory/pkg/errors"
)

// ThreadID identifies a conversation/user scope. All stores and the ledger
// are thread-scoped; there is no cross-thread read path.
type ThreadID struct {
	value string
}

// NewThreadID wraps a caller-supplied, already-stable thread identifier.
// Thread ids are assigned by the collaborator that owns conversation
// identity, not generated here.
func NewThreadID(value string) (ThreadID, error) {
	if value == "" {
		return ThreadID{}, apperrors.NewValidationError("thread id must not be empty")
	}
	return ThreadID{value: value}, nil
}

func (t ThreadID) String() string  { return t.value }
func (t ThreadID) IsZero() bool    { return t.value == "" }
func (t ThreadID) Equals(o ThreadID) bool { return t.value == o.value }

func (t ThreadID) MarshalJSON() ([]byte, error)  { return json.Marshal(t.value) }
func (t *ThreadID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.value = s
	return nil
}

// MemoryID identifies a memory item, unique within its thread.
type MemoryID struct {
	value uuid.UUID
}

// NewMemoryID generates a fresh random memory id.
func NewMemoryID() MemoryID {
	return MemoryID{value: uuid.New()}
}

// NewMemoryIDFromString parses an existing id, e.g. when rehydrating from
// storage.
func NewMemoryIDFromString(s string) (MemoryID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return MemoryID{}, apperrors.NewValidationError("invalid memory id").WithCause(err)
	}
	return MemoryID{value: parsed}, nil
}

func (m MemoryID) String() string       { return m.value.String() }
func (m MemoryID) IsZero() bool         { return m.value == uuid.Nil }
func (m MemoryID) Equals(o MemoryID) bool { return m.value == o.value }

func (m MemoryID) MarshalJSON() ([]byte, error) { return json.Marshal(m.value.String()) }
func (m *MemoryID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	m.value = parsed
	return nil
}

// ContradictionID identifies a contradiction record.
type ContradictionID struct {
	value uuid.UUID
}

func NewContradictionID() ContradictionID {
	return ContradictionID{value: uuid.New()}
}

func NewContradictionIDFromString(s string) (ContradictionID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ContradictionID{}, apperrors.NewValidationError("invalid contradiction id").WithCause(err)
	}
	return ContradictionID{value: parsed}, nil
}

func (c ContradictionID) String() string           { return c.value.String() }
func (c ContradictionID) IsZero() bool             { return c.value == uuid.Nil }
func (c ContradictionID) Equals(o ContradictionID) bool { return c.value == o.value }

func (c ContradictionID) MarshalJSON() ([]byte, error) { return json.Marshal(c.value.String()) }
func (c *ContradictionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	c.value = parsed
	return nil
}
