package models

import "time"

// ShowCounts holds row counts for the three sub-entity types of one show,
// as reported by the backend before a preload.
type ShowCounts struct {
	Classes int `json:"classes"`
	Trials  int `json:"trials"`
	Entries int `json:"entries"`
}

// ShowSnapshot describes one bulk-downloaded working set. It is metadata
// only; the raw rows live in the cache table under the show's bulk keys.
// Deleting a snapshot must also delete those rows.
type ShowSnapshot struct {
	// LicenseKey identifies the show at the backend.
	LicenseKey string

	// Label is a human-readable show name for the offline-shows UI.
	Label string

	// DownloadedAt is when the preload completed.
	DownloadedAt time.Time

	// ExpiresAt is when the snapshot stops being trusted.
	ExpiresAt time.Time

	// SizeBytes is the per-row-heuristic size estimate, not an exact count.
	SizeBytes int64

	// Bundle counts recorded at download time.
	ClassCount int
	TrialCount int
	EntryCount int
}

// Expired reports whether the snapshot's expiry has passed at now.
func (s ShowSnapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
