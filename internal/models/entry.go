// Package models defines the domain records tracked by the offline core:
// scored entries, pending local changes, detected conflicts, cache rows and
// preloaded show snapshots.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryStatus is the ring-progression status of an entry. Statuses only move
// forward during an event, which conflict resolution relies on.
type EntryStatus string

const (
	StatusNone      EntryStatus = "no-status"
	StatusCheckedIn EntryStatus = "checked-in"
	StatusInRing    EntryStatus = "in-ring"
	StatusCompleted EntryStatus = "completed"
)

// statusRank orders statuses by ring progression.
var statusRank = map[EntryStatus]int{
	StatusNone:      0,
	StatusCheckedIn: 1,
	StatusInRing:    2,
	StatusCompleted: 3,
}

// Rank returns the numeric progression value of s. Unknown statuses rank
// lowest so a malformed remote value never beats a real one.
func (s EntryStatus) Rank() int {
	return statusRank[s]
}

// Label returns a human-readable form of s for the conflict UI.
func (s EntryStatus) Label() string {
	switch s {
	case StatusCheckedIn:
		return "Checked in"
	case StatusInRing:
		return "In ring"
	case StatusCompleted:
		return "Completed"
	default:
		return "Not checked in"
	}
}

// Reserved field keys that map to typed Entry fields. Everything else in the
// wire payload is opaque domain data and lands in Entry.Fields.
const (
	FieldID        = "id"
	FieldClassID   = "class_id"
	FieldStatus    = "status"
	FieldIsScored  = "is_scored"
	FieldUpdatedAt = "updated_at"
)

// Entry is one scored item (a competition entry) as tracked by the local
// state manager. Core fields are typed; all other domain data (score, time,
// faults, placement, handler, notes, ...) passes through Fields untouched.
type Entry struct {
	ID        int64
	ClassID   int64
	Status    EntryStatus
	IsScored  bool
	UpdatedAt time.Time
	Fields    map[string]any
}

// Clone returns a deep-enough copy of e: the Fields map is copied, values are
// shared (payload values are treated as immutable once decoded).
func (e Entry) Clone() Entry {
	c := e
	c.Fields = make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	return c
}

// Patch is a field-level partial update to an Entry. Reserved keys (status,
// is_scored) route to the typed fields; all other keys write to Fields.
type Patch map[string]any

// Clone returns a copy of p.
func (p Patch) Clone() Patch {
	c := make(Patch, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Apply overlays p onto e. Keys touched by p always win; keys absent from p
// are left alone. Unknown reserved-key value types are ignored rather than
// corrupting the typed fields.
func (e *Entry) Apply(p Patch) {
	for k, v := range p {
		switch k {
		case FieldID, FieldClassID, FieldUpdatedAt:
			// Identity and server timestamp are never patched locally.
		case FieldStatus:
			if s, ok := v.(string); ok {
				e.Status = EntryStatus(s)
			} else if s, ok := v.(EntryStatus); ok {
				e.Status = s
			}
		case FieldIsScored:
			if b, ok := v.(bool); ok {
				e.IsScored = b
			}
		default:
			if e.Fields == nil {
				e.Fields = make(map[string]any)
			}
			e.Fields[k] = v
		}
	}
}

// Snapshot flattens e into a single map, the shape used on the wire and by
// conflict detection. The returned map is freshly allocated.
func (e Entry) Snapshot() map[string]any {
	m := make(map[string]any, len(e.Fields)+5)
	for k, v := range e.Fields {
		m[k] = v
	}
	m[FieldID] = e.ID
	m[FieldClassID] = e.ClassID
	m[FieldStatus] = string(e.Status)
	m[FieldIsScored] = e.IsScored
	if !e.UpdatedAt.IsZero() {
		m[FieldUpdatedAt] = e.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// MarshalJSON flattens the entry so opaque fields sit next to the typed ones,
// matching the backend wire format.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// UnmarshalJSON splits a flat wire object into typed fields and Fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	out := Entry{Fields: make(map[string]any)}
	for k, v := range m {
		switch k {
		case FieldID:
			id, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("entry id: %w", err)
			}
			out.ID = id
		case FieldClassID:
			id, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("entry class_id: %w", err)
			}
			out.ClassID = id
		case FieldStatus:
			if s, ok := v.(string); ok {
				out.Status = EntryStatus(s)
			}
		case FieldIsScored:
			if b, ok := v.(bool); ok {
				out.IsScored = b
			}
		case FieldUpdatedAt:
			if s, ok := v.(string); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return fmt.Errorf("entry updated_at: %w", err)
				}
				out.UpdatedAt = t
			}
		default:
			out.Fields[k] = v
		}
	}
	if out.Status == "" {
		out.Status = StatusNone
	}
	*e = out
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
