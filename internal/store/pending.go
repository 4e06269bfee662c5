package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ringsideapp/ringside/internal/dbx"
	"github.com/ringsideapp/ringside/internal/models"
)

// PendingChangeRepository owns the mutation-queue table. The table enforces
// the one-patch-per-entry invariant with a UNIQUE constraint on entry_id:
// upserting a change for an entry replaces any earlier unsynced patch.
type PendingChangeRepository struct {
	db dbx.DBTX
}

func NewPendingChangeRepository(db dbx.DBTX) *PendingChangeRepository {
	return &PendingChangeRepository{db: db}
}

// Upsert writes c, replacing any existing pending change for the same entry.
func (r *PendingChangeRepository) Upsert(ctx context.Context, c models.PendingChange) error {
	patch, err := json.Marshal(c.Patch)
	if err != nil {
		return fmt.Errorf("failed to serialize patch for entry %d: %w", c.EntryID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, entry_id, change_type, patch, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			id          = excluded.id,
			change_type = excluded.change_type,
			patch       = excluded.patch,
			created_at  = excluded.created_at
	`, c.ID, c.EntryID, string(c.Type), patch, millis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert pending change for entry %d: %w", c.EntryID, err)
	}
	return nil
}

// GetAll returns every queued change ordered by creation time. A row with a
// malformed patch is skipped rather than failing the whole load.
func (r *PendingChangeRepository) GetAll(ctx context.Context) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, change_type, patch, created_at
		FROM pending_changes ORDER BY created_at
	`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to select pending changes: %w", err)
	}
	defer rows.Close()

	var result []models.PendingChange
	for rows.Next() {
		var c models.PendingChange
		var patch []byte
		var created int64
		var changeType string
		if err := rows.Scan(&c.ID, &c.EntryID, &changeType, &patch, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(patch, &c.Patch); err != nil {
			continue
		}
		c.Type = models.ChangeType(changeType)
		c.CreatedAt = fromMillis(created)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByEntryID removes the queued change for one entry, if any.
func (r *PendingChangeRepository) DeleteByEntryID(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete pending change for entry %d: %w", entryID, err)
	}
	return nil
}

// Clear removes every queued change.
func (r *PendingChangeRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes`)
	if err != nil {
		return fmt.Errorf("failed to clear pending changes: %w", err)
	}
	return nil
}
