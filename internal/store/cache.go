package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ringsideapp/ringside/internal/dbx"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
)

// CacheRepository owns the general-purpose cache table. Expiry is lazy: an
// expired row found by Get or GetAll is deleted on the spot and treated as a
// miss, so no background sweep is required for correctness.
type CacheRepository struct {
	db  dbx.DBTX
	log logging.Logger
	now func() time.Time
}

func NewCacheRepository(db dbx.DBTX, log logging.Logger) *CacheRepository {
	return &CacheRepository{db: db, log: log, now: time.Now}
}

// Get returns the cached row for key, or nil on a miss. A row whose TTL has
// elapsed is deleted as a side effect and reported as a miss. Storage errors
// degrade to a miss and are logged; callers never see them.
func (r *CacheRepository) Get(ctx context.Context, key string) *models.CacheEntry {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, data, created_at, ttl_ms, size_bytes FROM cache WHERE key = ?`, key)

	e, err := scanCacheEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		r.log.Error(ctx, "cache read failed, treating as miss", "key", key, "error", err)
		return nil
	}

	if e.Expired(r.now()) {
		if err := r.Delete(ctx, key); err != nil {
			r.log.Warn(ctx, "failed to evict expired cache entry", "key", key, "error", err)
		}
		return nil
	}

	return e
}

// GetJSON decodes the cached payload for key into v. Returns false on a miss
// or when the stored payload is malformed (a corrupted legacy row reads as
// absence, never as a fatal error).
func (r *CacheRepository) GetJSON(ctx context.Context, key string, v any) bool {
	e := r.Get(ctx, key)
	if e == nil {
		return false
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		r.log.Warn(ctx, "malformed cache payload, treating as miss", "key", key, "error", err)
		if err := r.Delete(ctx, key); err != nil {
			r.log.Warn(ctx, "failed to delete malformed cache entry", "key", key, "error", err)
		}
		return false
	}
	return true
}

// Set serializes value and upserts it under key with an optional TTL
// (ttl <= 0 means the entry never expires). The approximate serialized size
// is stored alongside. Unlike reads, write failures propagate so callers can
// surface storage-full conditions.
func (r *CacheRepository) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache value for %q: %w", key, err)
	}
	return r.SetEntry(ctx, models.CacheEntry{
		Key:       key,
		Data:      data,
		CreatedAt: r.now(),
		TTL:       ttl,
		Size:      int64(len(data)),
	})
}

// SetEntry upserts a fully-formed cache row. Used by Set and by batch writes
// that need to carry their own timestamps.
func (r *CacheRepository) SetEntry(ctx context.Context, e models.CacheEntry) error {
	if e.Size == 0 {
		e.Size = int64(len(e.Data))
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache (key, data, created_at, ttl_ms, size_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data       = excluded.data,
			created_at = excluded.created_at,
			ttl_ms     = excluded.ttl_ms,
			size_bytes = excluded.size_bytes
	`, e.Key, []byte(e.Data), millis(e.CreatedAt), e.TTL.Milliseconds(), e.Size)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", e.Key, err)
	}
	return nil
}

// GetAll returns all live cache rows, deleting any expired rows it finds.
// Storage errors degrade to an empty result and are logged.
func (r *CacheRepository) GetAll(ctx context.Context) []models.CacheEntry {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, data, created_at, ttl_ms, size_bytes FROM cache`)
	if err != nil {
		r.log.Error(ctx, "cache list failed, returning empty", "error", err)
		return nil
	}
	defer rows.Close()

	var live []models.CacheEntry
	var expired []string
	now := r.now()

	for rows.Next() {
		e, err := scanCacheEntry(rows.Scan)
		if err != nil {
			r.log.Error(ctx, "cache list scan failed, returning empty", "error", err)
			return nil
		}
		if e.Expired(now) {
			expired = append(expired, e.Key)
			continue
		}
		live = append(live, *e)
	}
	if err := rows.Err(); err != nil {
		r.log.Error(ctx, "cache list iteration failed, returning empty", "error", err)
		return nil
	}

	for _, key := range expired {
		if err := r.Delete(ctx, key); err != nil {
			r.log.Warn(ctx, "failed to evict expired cache entry", "key", key, "error", err)
		}
	}

	return live
}

// Delete removes one row. Deleting a missing key is not an error.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	return nil
}

// Clear removes every row.
func (r *CacheRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache`)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func scanCacheEntry(scan func(dest ...any) error) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var created, ttlMs int64
	if err := scan(&e.Key, (*[]byte)(&e.Data), &created, &ttlMs, &e.Size); err != nil {
		return nil, err
	}
	e.CreatedAt = fromMillis(created)
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	return &e, nil
}
