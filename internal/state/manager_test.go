package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/conflict"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/ringsideapp/ringside/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopWriter struct{}

func (noopWriter) PushEntryUpdate(context.Context, int64, map[string]any) error { return nil }

// attachEngine wires a conflict engine into m and returns it for inspection.
func attachEngine(t *testing.T, m *Manager) *conflict.Engine {
	t.Helper()
	engine := conflict.New(conflict.NewStore(), noopWriter{}, logging.NewDiscard())
	m.SetResolver(engine)
	return engine
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ringside.db")
	s, err := store.Open(context.Background(), dsn, logging.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newManager(t *testing.T, st *store.Store) *Manager {
	t.Helper()
	m := New(st, logging.NewDiscard())
	m.Initialize(context.Background())
	return m
}

func seedEntries(t *testing.T, m *Manager, entries ...models.Entry) {
	t.Helper()
	require.NoError(t, m.ApplyServerUpdate(context.Background(), entries))
}

func TestUpdateEntryVisibleImmediately(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10, Status: models.StatusCheckedIn})

	updated, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(85)}, models.ChangeTypeScore)
	require.NoError(t, err)
	assert.Equal(t, float64(85), updated.Fields["score"])

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, float64(85), got.Fields["score"])

	pending := m.PendingChanges()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].EntryID)
	assert.Equal(t, models.ChangeTypeScore, pending[0].Type)
}

func TestUpdateEntryUnknownID(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)

	_, err := m.UpdateEntry(context.Background(), 999, models.Patch{"score": float64(1)}, models.ChangeTypeScore)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "entry 999 not found", err.Error())
}

func TestServerUpdatePreservesPendingFields(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m, models.Entry{
		ID: 1, ClassID: 10, Status: models.StatusInRing,
		Fields: map[string]any{"handler": "Alice", "score": float64(70)},
	})

	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(92)}, models.ChangeTypeScore)
	require.NoError(t, err)

	// An authoritative update touches a different field while the local
	// score edit is still unsynced.
	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 1, ClassID: 10, Status: models.StatusInRing,
		Fields: map[string]any{"handler": "Alice Smith", "score": float64(70)},
	}}))

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", got.Fields["handler"])
	assert.Equal(t, float64(92), got.Fields["score"])

	// The pending change is still queued for the next sync.
	assert.Len(t, m.PendingChanges(), 1)
}

func TestServerUpdateReplacesUntouchedEntry(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m, models.Entry{ID: 2, ClassID: 10, Status: models.StatusNone})

	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 2, ClassID: 10, Status: models.StatusCompleted, IsScored: true,
	}}))

	got, ok := m.Entry(2)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.IsScored)
}

func TestClearPendingChangeIdempotent(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"status": "completed"}, models.ChangeTypeStatus)
	require.NoError(t, err)

	require.NoError(t, m.ClearPendingChange(ctx, 1))
	require.NoError(t, m.ClearPendingChange(ctx, 1))
	assert.Empty(t, m.PendingChanges())

	// The patched value stays applied after the queue entry is confirmed.
	got, _ := m.Entry(1)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestEntriesFiltersAndSortsByID(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)

	seedEntries(t, m,
		models.Entry{ID: 3, ClassID: 10},
		models.Entry{ID: 1, ClassID: 10},
		models.Entry{ID: 2, ClassID: 20},
	)

	got := m.Entries(10)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)

	assert.Empty(t, m.Entries(99))
}

func TestPendingChangesForClass(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m,
		models.Entry{ID: 1, ClassID: 10},
		models.Entry{ID: 2, ClassID: 20},
	)
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(1)}, models.ChangeTypeScore)
	require.NoError(t, err)
	_, err = m.UpdateEntry(ctx, 2, models.Patch{"score": float64(2)}, models.ChangeTypeScore)
	require.NoError(t, err)

	got := m.PendingChangesForClass(10)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].EntryID)
}

func TestStatsAndClear(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	ctx := context.Background()

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10}, models.Entry{ID: 2, ClassID: 10})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(5)}, models.ChangeTypeScore)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.PendingChanges)
	assert.False(t, stats.LastSync.IsZero())

	require.NoError(t, m.Clear(ctx))
	stats = m.Stats()
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Equal(t, 0, stats.PendingChanges)
	assert.True(t, stats.LastSync.IsZero())
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	m := newManager(t, st)
	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10, Fields: map[string]any{"handler": "Alice"}})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(88)}, models.ChangeTypeScore)
	require.NoError(t, err)

	// A fresh manager over the same store sees both the entries and the
	// unsynced edit, as after an app restart.
	m2 := newManager(t, st)

	got, ok := m2.Entry(1)
	require.True(t, ok)
	assert.Equal(t, "Alice", got.Fields["handler"])
	assert.Equal(t, float64(88), got.Fields["score"])

	pending := m2.PendingChanges()
	require.Len(t, pending, 1)
	assert.Equal(t, models.Patch{"score": float64(88)}, pending[0].Patch)
}

func TestServerUpdateResolvesDisputedScoreToNewerRemote(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	engine := attachEngine(t, m)
	ctx := context.Background()

	editedAt := time.Now().Truncate(time.Millisecond)
	m.now = func() time.Time { return editedAt }

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(-time.Hour)})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(5)}, models.ChangeTypeScore)
	require.NoError(t, err)

	// A remote score lands thirty seconds later: inside the ambiguous window,
	// so a conflict is recorded, and the score auto-resolver takes the later
	// write.
	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(30 * time.Second),
		Fields: map[string]any{"score": float64(9)},
	}}))

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, float64(9), got.Fields["score"])

	// The superseded local edit is gone from memory and from the store, so
	// no later sync pass can overwrite the server with the stale value.
	assert.Empty(t, m.PendingChanges())
	stored, err := st.Pending.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	all := engine.Store().All()
	require.Len(t, all, 1)
	assert.Equal(t, models.ConflictResolved, all[0].Status)
	assert.Equal(t, models.ResolutionRemote, all[0].Resolution)
	assert.Empty(t, engine.PendingConflicts())
}

func TestServerUpdateTimestampTieQueuesConflictKeepsLocal(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	engine := attachEngine(t, m)
	ctx := context.Background()

	editedAt := time.Now().Truncate(time.Millisecond)
	m.now = func() time.Time { return editedAt }

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(-time.Hour)})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(5)}, models.ChangeTypeScore)
	require.NoError(t, err)

	// Same timestamp on both sides: nothing can be auto-resolved, so the
	// conflict waits for the user and the local edit stays on screen.
	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 1, ClassID: 10, UpdatedAt: editedAt,
		Fields: map[string]any{"score": float64(9)},
	}}))

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, float64(5), got.Fields["score"])
	assert.Len(t, m.PendingChanges(), 1)

	pending := engine.PendingConflicts()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].EntryID)
	assert.Equal(t, models.ConflictTypeScore, pending[0].Type)
}

func TestServerUpdateMuchNewerRemoteDropsStaleEdit(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	engine := attachEngine(t, m)
	ctx := context.Background()

	editedAt := time.Now().Truncate(time.Millisecond)
	m.now = func() time.Time { return editedAt }

	seedEntries(t, m, models.Entry{ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(-time.Hour)})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"score": float64(5)}, models.ChangeTypeScore)
	require.NoError(t, err)

	// Remote wrote two minutes after the local edit: it wins implicitly,
	// no conflict worth recording.
	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(2 * time.Minute),
		Fields: map[string]any{"score": float64(9)},
	}}))

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, float64(9), got.Fields["score"])
	assert.Empty(t, m.PendingChanges())
	assert.Empty(t, engine.Store().All())
}

func TestServerUpdateMergesDisjointEntryDataEdits(t *testing.T) {
	st := setupStore(t)
	m := newManager(t, st)
	engine := attachEngine(t, m)
	ctx := context.Background()

	editedAt := time.Now().Truncate(time.Millisecond)
	m.now = func() time.Time { return editedAt }

	seedEntries(t, m, models.Entry{
		ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(-time.Hour),
		Fields: map[string]any{"handler": "Alice"},
	})
	_, err := m.UpdateEntry(ctx, 1, models.Patch{"notes": "nice run"}, models.ChangeTypeEntryUpdate)
	require.NoError(t, err)

	// Remote edited a different non-critical field ten seconds later. The
	// entry-data merge keeps both edits and the queued change now carries
	// the synthesis.
	require.NoError(t, m.ApplyServerUpdate(ctx, []models.Entry{{
		ID: 1, ClassID: 10, UpdatedAt: editedAt.Add(10 * time.Second),
		Fields: map[string]any{"handler": "Alice", "ring": "3"},
	}}))

	got, ok := m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, "nice run", got.Fields["notes"])
	assert.Equal(t, "3", got.Fields["ring"])
	assert.Equal(t, "Alice", got.Fields["handler"])

	pending := m.PendingChanges()
	require.Len(t, pending, 1)
	assert.Equal(t, "nice run", pending[0].Patch["notes"])

	all := engine.Store().All()
	require.Len(t, all, 1)
	assert.Equal(t, models.ConflictResolved, all[0].Status)
	assert.Equal(t, models.ResolutionMerge, all[0].Resolution)
	assert.Equal(t, "nice run", all[0].Merged["notes"])
}
