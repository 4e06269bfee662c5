package models

import "time"

// ConflictType classifies what part of an entry two sides disagree on.
type ConflictType string

const (
	ConflictTypeScore     ConflictType = "score"
	ConflictTypeStatus    ConflictType = "status"
	ConflictTypeEntryData ConflictType = "entry_data"
)

// ConflictStatus is the lifecycle state of a conflict. Resolved and ignored
// are terminal; terminal conflicts are eligible for bulk purge.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// ResolutionAction says which side (or synthesis) won a conflict.
type ResolutionAction string

const (
	ResolutionLocal  ResolutionAction = "local"
	ResolutionRemote ResolutionAction = "remote"
	ResolutionMerge  ResolutionAction = "merge"
)

// Conflict records a detected disagreement between the local and remote
// versions of one entry. Both full snapshots are kept so the user (or the
// auto-resolver) can arbitrate later. Immutable once created except for the
// Status/Resolution/Merged fields.
type Conflict struct {
	// ID is a unique conflict identifier (uuid).
	ID string

	// EntryID is the disputed entry.
	EntryID int64

	// Type classifies the disagreement (score / status / entry_data).
	Type ConflictType

	// Local and Remote are full flattened snapshots of both versions.
	Local  map[string]any
	Remote map[string]any

	// LocalUpdatedAt / RemoteUpdatedAt are the two sides' timestamps.
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time

	// DetectedAt is when the conflict was created.
	DetectedAt time.Time

	// Status is pending until explicitly resolved or ignored.
	Status ConflictStatus

	// Resolution records which side won, once resolved.
	Resolution ResolutionAction

	// Merged holds the synthesized payload for merge resolutions.
	Merged map[string]any
}

// Resolution is the outcome proposed by the auto-resolver or chosen by the
// user: which action to take and the payload to persist.
type Resolution struct {
	Action ResolutionAction
	Data   map[string]any
}
