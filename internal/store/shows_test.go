package store

import (
	"context"
	"testing"
	"time"

	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowUpsertAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewShowRepository(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	snap := models.ShowSnapshot{
		LicenseKey:   "2024-1234",
		Label:        "Spring Classic",
		DownloadedAt: now,
		ExpiresAt:    now.Add(7 * 24 * time.Hour),
		SizeBytes:    1_024_288,
		ClassCount:   10,
		TrialCount:   2,
		EntryCount:   500,
	}
	require.NoError(t, r.Upsert(ctx, snap))

	got, err := r.Get(ctx, "2024-1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Label, got.Label)
	assert.Equal(t, snap.SizeBytes, got.SizeBytes)
	assert.Equal(t, snap.EntryCount, got.EntryCount)
	assert.True(t, got.DownloadedAt.Equal(snap.DownloadedAt))
	assert.True(t, got.ExpiresAt.Equal(snap.ExpiresAt))

	// Re-downloading replaces the snapshot in place.
	snap.Label = "Spring Classic (re-download)"
	snap.EntryCount = 512
	require.NoError(t, r.Upsert(ctx, snap))

	got, err = r.Get(ctx, "2024-1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 512, got.EntryCount)
}

func TestShowGetMissing(t *testing.T) {
	db := setupDB(t)
	r := NewShowRepository(db)

	got, err := r.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestShowGetAllNewestFirst(t *testing.T) {
	db := setupDB(t)
	r := NewShowRepository(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, r.Upsert(ctx, models.ShowSnapshot{
		LicenseKey: "old", DownloadedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, r.Upsert(ctx, models.ShowSnapshot{
		LicenseKey: "new", DownloadedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].LicenseKey)
	assert.Equal(t, "old", all[1].LicenseKey)
}

func TestShowUpdateExpiry(t *testing.T) {
	db := setupDB(t)
	r := NewShowRepository(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, r.Upsert(ctx, models.ShowSnapshot{
		LicenseKey: "2024-1234", DownloadedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	later := now.Add(48 * time.Hour)
	require.NoError(t, r.UpdateExpiry(ctx, "2024-1234", later))

	got, err := r.Get(ctx, "2024-1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.Equal(later))

	err = r.UpdateExpiry(ctx, "missing", later)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestShowDeleteMissingIsNoError(t *testing.T) {
	db := setupDB(t)
	r := NewShowRepository(db)

	assert.NoError(t, r.Delete(context.Background(), "missing"))
}
