// Package domain defines the shared entities and value types for Brio's
// branch lifecycle, merge, and VFS subsystems.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BranchId is an opaque, 128-bit identifier for a Branch. Equality is by value.
type BranchId struct {
	id uuid.UUID
}

// NewBranchId generates a fresh, random BranchId.
func NewBranchId() BranchId {
	return BranchId{id: uuid.New()}
}

// ParseBranchId parses a BranchId from its canonical string form.
func ParseBranchId(s string) (BranchId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BranchId{}, fmt.Errorf("parse branch id %q: %w", s, err)
	}
	return BranchId{id: id}, nil
}

// String returns the canonical textual representation of the id.
func (b BranchId) String() string {
	return b.id.String()
}

// IsZero reports whether b is the zero-value BranchId (never a valid id).
func (b BranchId) IsZero() bool {
	return b.id == uuid.Nil
}

// MarshalJSON renders a BranchId as its canonical string form, since its
// underlying uuid.UUID is unexported and would otherwise serialize as "{}".
func (b BranchId) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.id.String())
}

// UnmarshalJSON parses a BranchId from its canonical string form.
func (b *BranchId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("parse branch id %q: %w", s, err)
	}
	b.id = id
	return nil
}

// SessionId identifies a CoW working directory on local disk. Unlike
// BranchId it is a plain opaque string (not UUID-shaped) because session
// directories are named directly from it on disk.
type SessionId string

// String returns the session id as a string.
func (s SessionId) String() string {
	return string(s)
}

// NewSessionId generates a fresh session id.
func NewSessionId() SessionId {
	return SessionId(uuid.New().String())
}

// AgentId identifies an agent implementation registered with the dispatch
// router. Agent ids are caller-supplied, non-empty strings (e.g. "builder-1").
type AgentId string

func (a AgentId) String() string { return string(a) }
