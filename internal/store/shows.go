package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/dbx"
	"github.com/ringsideapp/ringside/internal/models"
)

// ShowRepository owns the offline-show snapshot table (metadata about bulk
// downloads; the downloaded rows themselves live in the cache table).
type ShowRepository struct {
	db dbx.DBTX
}

func NewShowRepository(db dbx.DBTX) *ShowRepository {
	return &ShowRepository{db: db}
}

// Get returns the snapshot for a license key, or nil when absent.
func (r *ShowRepository) Get(ctx context.Context, licenseKey string) (*models.ShowSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT license_key, label, downloaded_at, expires_at, size_bytes,
		       class_count, trial_count, entry_count
		FROM offline_shows WHERE license_key = ?
	`, licenseKey)

	s, err := scanShow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get show snapshot %q: %w", licenseKey, err)
	}
	return s, nil
}

// Upsert writes (or replaces) the snapshot for its license key.
func (r *ShowRepository) Upsert(ctx context.Context, s models.ShowSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offline_shows
			(license_key, label, downloaded_at, expires_at, size_bytes,
			 class_count, trial_count, entry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(license_key) DO UPDATE SET
			label         = excluded.label,
			downloaded_at = excluded.downloaded_at,
			expires_at    = excluded.expires_at,
			size_bytes    = excluded.size_bytes,
			class_count   = excluded.class_count,
			trial_count   = excluded.trial_count,
			entry_count   = excluded.entry_count
	`, s.LicenseKey, s.Label, millis(s.DownloadedAt), millis(s.ExpiresAt), s.SizeBytes,
		s.ClassCount, s.TrialCount, s.EntryCount)
	if err != nil {
		return fmt.Errorf("failed to upsert show snapshot %q: %w", s.LicenseKey, err)
	}
	return nil
}

// GetAll lists all snapshots, expired or not. Expiry policy belongs to the
// preload manager.
func (r *ShowRepository) GetAll(ctx context.Context) ([]models.ShowSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT license_key, label, downloaded_at, expires_at, size_bytes,
		       class_count, trial_count, entry_count
		FROM offline_shows ORDER BY downloaded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list show snapshots: %w", err)
	}
	defer rows.Close()

	var result []models.ShowSnapshot
	for rows.Next() {
		s, err := scanShow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes one snapshot. Missing keys are not an error.
func (r *ShowRepository) Delete(ctx context.Context, licenseKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offline_shows WHERE license_key = ?`, licenseKey)
	if err != nil {
		return fmt.Errorf("failed to delete show snapshot %q: %w", licenseKey, err)
	}
	return nil
}

// Clear removes every snapshot.
func (r *ShowRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offline_shows`)
	if err != nil {
		return fmt.Errorf("failed to clear show snapshots: %w", err)
	}
	return nil
}

// UpdateExpiry moves a snapshot's expiry without touching its data.
func (r *ShowRepository) UpdateExpiry(ctx context.Context, licenseKey string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE offline_shows SET expires_at = ? WHERE license_key = ?`,
		millis(expiresAt), licenseKey)
	if err != nil {
		return fmt.Errorf("failed to update expiry for %q: %w", licenseKey, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("show snapshot %q: %w", licenseKey, common.ErrNotFound)
	}
	return nil
}

func scanShow(scan func(dest ...any) error) (*models.ShowSnapshot, error) {
	var s models.ShowSnapshot
	var downloaded, expires int64
	if err := scan(&s.LicenseKey, &s.Label, &downloaded, &expires, &s.SizeBytes,
		&s.ClassCount, &s.TrialCount, &s.EntryCount); err != nil {
		return nil, err
	}
	s.DownloadedAt = fromMillis(downloaded)
	s.ExpiresAt = fromMillis(expires)
	return &s, nil
}
