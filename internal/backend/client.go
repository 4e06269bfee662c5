// Package backend is the narrow boundary to the managed scoring API: a
// request/response client keyed by a show license, plus a websocket listener
// for real-time score pushes. Everything past `id`, `class_id` and
// `updated_at` on an entry row is opaque pass-through payload.
package backend

import (
	"context"
	"encoding/json"

	"github.com/ringsideapp/ringside/internal/models"
)

// Client defines the backend operations the offline core consumes.
type Client interface {
	// ShowInfo returns display metadata for a show.
	ShowInfo(ctx context.Context, licenseKey string) (*ShowInfo, error)

	// ShowCounts returns row counts for the three sub-entity types,
	// used to estimate a preload before starting it.
	ShowCounts(ctx context.Context, licenseKey string) (models.ShowCounts, error)

	// Classes and Trials return the raw rows for a show. The core caches
	// them without interpreting their contents.
	Classes(ctx context.Context, licenseKey string) ([]json.RawMessage, error)
	Trials(ctx context.Context, licenseKey string) ([]json.RawMessage, error)

	// EntriesPage returns one page of entry rows for a show.
	EntriesPage(ctx context.Context, licenseKey string, offset, limit int) ([]models.Entry, error)

	// PushEntryUpdate writes one entry's fields back to the backend. Used
	// by the pending-sync consumer and by conflict resolution.
	PushEntryUpdate(ctx context.Context, entryID int64, data map[string]any) error
}

// ShowInfo is display metadata about one show.
type ShowInfo struct {
	LicenseKey string `json:"license_key"`
	Name       string `json:"name"`
	Club       string `json:"club"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
}

// EntryUpdate is a pushed authoritative update, delivered over the realtime
// channel or returned from a poll.
type EntryUpdate struct {
	Type    string         `json:"type"`
	Entries []models.Entry `json:"entries"`
}
