package models

import "time"

// ChangeType tags what kind of local mutation produced a pending change.
type ChangeType string

const (
	ChangeTypeScore       ChangeType = "score"
	ChangeTypeStatus      ChangeType = "status"
	ChangeTypeCheckIn     ChangeType = "check-in"
	ChangeTypeEntryUpdate ChangeType = "entry-update"
)

// PendingChange is one unsynced local mutation to a single entry.
//
// At most one pending change exists per entry at any time: a second local
// edit replaces the stored patch outright (last-write-wins on the local
// side). Downstream sync assumes a single flat patch per entry, so this is a
// deliberate simplification and not a queue of ordered diffs.
type PendingChange struct {
	// ID is a unique change identifier (uuid).
	ID string

	// EntryID is the target entry.
	EntryID int64

	// Type tags the mutation kind for sync-queue diagnostics.
	Type ChangeType

	// Patch holds only the fields the local edit touched.
	Patch Patch

	// CreatedAt is when the (latest) local edit was made.
	CreatedAt time.Time
}

// Clone returns a copy of c with its own patch map.
func (c PendingChange) Clone() PendingChange {
	out := c
	out.Patch = c.Patch.Clone()
	return out
}
