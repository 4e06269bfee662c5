// Package state holds the in-memory authoritative view of scoring entries
// for the current session. The map here is the source of truth while the app
// runs; the durable store is only the boot-time seed and crash recovery.
//
// Reconciliation rule: an inbound authoritative update never overwrites a
// field that an unsynced local edit has touched. Fields outside the pending
// patch always take the server value, so an unrelated remote change (say, a
// handler rename) lands even while a local score edit is still in flight.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/conflict"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/ringsideapp/ringside/internal/store"
)

// ConflictResolver arbitrates a remote update that collides with a pending
// local edit. Satisfied by conflict.Engine.
type ConflictResolver interface {
	Reconcile(ctx context.Context, entryID int64, local, remote map[string]any, typ models.ConflictType) (conflict.Verdict, map[string]any)
}

// Cache key under which the entry snapshot persists between sessions.
const entriesCacheKey = "state:entries"

// Stats summarizes manager state for diagnostics and UI badges.
type Stats struct {
	TotalEntries   int
	PendingChanges int
	LastSync       time.Time
}

// Manager is the local state manager. All methods are safe for concurrent
// use; a single mutex serializes mutations, which gives the same atomicity
// the browser original got for free from its single-threaded event loop
// (here the websocket push listener and the UI run on separate goroutines).
type Manager struct {
	mu       sync.RWMutex
	entries  map[int64]models.Entry
	pending  map[int64]models.PendingChange
	lastSync time.Time

	store    *store.Store
	resolver ConflictResolver
	log      logging.Logger
	now      func() time.Time
	newID    func() string
}

// New returns an empty manager backed by st. Call Initialize to seed it from
// the durable store.
func New(st *store.Store, log logging.Logger) *Manager {
	return &Manager{
		entries: make(map[int64]models.Entry),
		pending: make(map[int64]models.PendingChange),
		store:   st,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetResolver attaches the conflict engine consulted when an incoming
// authoritative entry collides with a pending local edit. Without one every
// collision falls back to the pending-preserving field merge.
func (m *Manager) SetResolver(r ConflictResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = r
}

// Initialize seeds the in-memory maps from the durable store. Load failures
// leave the state empty rather than failing startup: an empty local cache is
// a valid, if degraded, starting point.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored []models.Entry
	if m.store.Cache.GetJSON(ctx, entriesCacheKey, &stored) {
		for _, e := range stored {
			m.entries[e.ID] = e
		}
	}

	changes, err := m.store.Pending.GetAll(ctx)
	if err != nil {
		m.log.Warn(ctx, "failed to load pending changes, starting with empty queue", "error", err)
		return
	}
	for _, c := range changes {
		m.pending[c.EntryID] = c
	}

	m.log.Info(ctx, "local state initialized",
		"entries", len(m.entries), "pending", len(m.pending))
}

// Entry returns the entry with any pending patch overlaid (patched fields
// always win). The bool is false for unknown IDs.
func (m *Manager) Entry(id int64) (models.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlaid(id)
}

// Entries returns all entries for one class, pending patches overlaid,
// ordered by entry ID. Unknown classes yield an empty slice.
func (m *Manager) Entries(classID int64) []models.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Entry, 0)
	for id, e := range m.entries {
		if e.ClassID != classID {
			continue
		}
		if overlay, ok := m.overlaid(id); ok {
			result = append(result, overlay)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Manager) overlaid(id int64) (models.Entry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return models.Entry{}, false
	}
	out := e.Clone()
	if pc, ok := m.pending[id]; ok {
		out.Apply(pc.Patch)
	}
	return out, true
}

// ApplyServerUpdate merges authoritative entries into the map and persists
// the result. An entry without a pending change takes the server copy as-is.
// An entry with one goes through the conflict resolver: depending on its
// verdict the patched fields keep their local values, the remote copy wins
// outright (dropping the now-stale pending change), a synthesized merge
// replaces both sides, or a pending conflict is recorded and the local edit
// stays visible until the user arbitrates.
func (m *Manager) ApplyServerUpdate(ctx context.Context, incoming []models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, remote := range incoming {
		pc, hasPending := m.pending[remote.ID]
		if !hasPending {
			m.entries[remote.ID] = remote.Clone()
			continue
		}

		local, known := m.overlaid(remote.ID)
		if !known || m.resolver == nil {
			merged := remote.Clone()
			merged.Apply(pc.Patch)
			m.entries[remote.ID] = merged
			continue
		}

		verdict, payload := m.resolver.Reconcile(ctx, remote.ID,
			local.Snapshot(), remote.Snapshot(), conflictTypeFor(pc.Type))

		switch verdict {
		case conflict.VerdictAcceptRemote:
			m.entries[remote.ID] = remote.Clone()
			delete(m.pending, remote.ID)
			if err := m.store.Pending.DeleteByEntryID(ctx, remote.ID); err != nil {
				m.log.Warn(ctx, "failed to drop superseded pending change",
					"entry_id", remote.ID, "error", err)
			}

		case conflict.VerdictUseMerged:
			patch := models.Patch(payload).Clone()
			merged := remote.Clone()
			merged.Apply(patch)
			m.entries[remote.ID] = merged
			// The pending change now carries the merged payload, so the
			// next sync pass pushes the synthesis, not the raw local edit.
			pc.Patch = patch
			m.pending[remote.ID] = pc
			if err := m.store.Pending.Upsert(ctx, pc); err != nil {
				m.log.Warn(ctx, "failed to persist merged pending change",
					"entry_id", remote.ID, "error", err)
			}

		default: // VerdictKeepLocal, VerdictNeedsUser
			merged := remote.Clone()
			merged.Apply(pc.Patch)
			m.entries[remote.ID] = merged
		}
	}
	m.lastSync = m.now()

	if err := m.persistEntries(ctx); err != nil {
		return err
	}

	m.log.Debug(ctx, "server update applied", "count", len(incoming))
	return nil
}

// conflictTypeFor maps a pending change's kind onto the conflict taxonomy.
// Check-ins dispute the check_in_status field, which is entry data rather
// than ring progression.
func conflictTypeFor(t models.ChangeType) models.ConflictType {
	switch t {
	case models.ChangeTypeScore:
		return models.ConflictTypeScore
	case models.ChangeTypeStatus:
		return models.ConflictTypeStatus
	default:
		return models.ConflictTypeEntryData
	}
}

// UpdateEntry applies a local edit: the patch lands on the in-memory entry,
// and the (single) pending change for that entry is created or replaced.
// Fails fast on unknown IDs; a local edit never creates a phantom entry.
func (m *Manager) UpdateEntry(ctx context.Context, id int64, patch models.Patch, changeType models.ChangeType) (models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return models.Entry{}, fmt.Errorf("entry %d %w", id, common.ErrNotFound)
	}

	updated := e.Clone()
	updated.Apply(patch)
	updated.UpdatedAt = m.now()
	m.entries[id] = updated

	change := models.PendingChange{
		ID:        m.newID(),
		EntryID:   id,
		Type:      changeType,
		Patch:     patch.Clone(),
		CreatedAt: m.now(),
	}
	m.pending[id] = change

	if err := m.persistEntries(ctx); err != nil {
		return models.Entry{}, err
	}
	if err := m.store.Pending.Upsert(ctx, change); err != nil {
		return models.Entry{}, err
	}

	return updated.Clone(), nil
}

// ClearPendingChange removes the pending change for an entry once the
// backend confirms the write. A no-op when nothing is pending.
func (m *Manager) ClearPendingChange(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[id]; !ok {
		return nil
	}
	delete(m.pending, id)
	return m.store.Pending.DeleteByEntryID(ctx, id)
}

// PendingChanges returns all queued changes ordered by creation time.
func (m *Manager) PendingChanges() []models.PendingChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.PendingChange, 0, len(m.pending))
	for _, c := range m.pending {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// PendingChangesForClass filters PendingChanges down to entries of one class.
func (m *Manager) PendingChangesForClass(classID int64) []models.PendingChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.PendingChange
	for id, c := range m.pending {
		if e, ok := m.entries[id]; ok && e.ClassID == classID {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Stats reports counts and the last-sync timestamp.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TotalEntries:   len(m.entries),
		PendingChanges: len(m.pending),
		LastSync:       m.lastSync,
	}
}

// Clear wipes the in-memory state and the two store tables the manager owns.
// Used on logout or when switching shows.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[int64]models.Entry)
	m.pending = make(map[int64]models.PendingChange)
	m.lastSync = time.Time{}

	if err := m.store.Cache.Delete(ctx, entriesCacheKey); err != nil {
		return err
	}
	return m.store.Pending.Clear(ctx)
}

// persistEntries snapshots the entry map to the cache table (no TTL). The
// caller holds the mutex.
func (m *Manager) persistEntries(ctx context.Context) error {
	snapshot := make([]models.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, e)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return m.store.Cache.Set(ctx, entriesCacheKey, snapshot, 0)
}
