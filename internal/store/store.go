// Package store is the durable local store backing the offline core: a
// SQLite database with four tables (general TTL cache, pending-change queue,
// offline-show snapshots, metadata), accessed through small per-table
// repositories.
//
// Failure policy: read paths degrade to "no data" and log, so a broken local
// store never takes the app down; write paths return errors because silently
// losing a write is unacceptable.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/ringsideapp/ringside/internal/dbx"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/ringsideapp/ringside/internal/store/migrations"

	_ "modernc.org/sqlite"
)

// SchemaVersion gates cached data across app versions. A stored version that
// does not match is treated as "cache is absent": cached tables are wiped and
// restamped, never reported as corruption. Pending changes survive the wipe
// since they are unsynced user work, not cache.
const SchemaVersion = 3

const schemaVersionKey = "schema_version"

// Store bundles the per-table repositories over one SQLite handle.
type Store struct {
	db  *sql.DB
	log logging.Logger

	Cache    *CacheRepository
	Pending  *PendingChangeRepository
	Shows    *ShowRepository
	Metadata *MetadataRepository
}

// Open opens (creating if needed) the local database at dsn, runs embedded
// migrations and applies the schema-version gate. Safe to call once per
// process; the returned Store is safe for concurrent use.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	s := &Store{
		db:       db,
		log:      log,
		Cache:    NewCacheRepository(db, log),
		Pending:  NewPendingChangeRepository(db),
		Shows:    NewShowRepository(db),
		Metadata: NewMetadataRepository(db),
	}

	if err := s.ensureSchemaVersion(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for transactional helpers.
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// ensureSchemaVersion wipes cache-derived tables when the stamped version
// differs from SchemaVersion, then stamps the current version.
func (s *Store) ensureSchemaVersion(ctx context.Context) error {
	raw, err := s.Metadata.Get(ctx, schemaVersionKey)
	if err != nil {
		return err
	}

	stored := -1
	if raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			stored = v
		}
	}

	if stored != SchemaVersion {
		if stored >= 0 {
			s.log.Warn(ctx, "local store schema version mismatch, discarding cached data",
				"stored", stored, "current", SchemaVersion)
		}
		if err := s.Cache.Clear(ctx); err != nil {
			return err
		}
		if err := s.Shows.Clear(ctx); err != nil {
			return err
		}
		if err := s.Metadata.Set(ctx, schemaVersionKey, strconv.Itoa(SchemaVersion)); err != nil {
			return err
		}
	}

	return nil
}

// BatchSetCache writes multiple cache rows within one transaction. Either
// every row lands or none does.
func (s *Store) BatchSetCache(ctx context.Context, entries []models.CacheEntry) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewCacheRepository(tx, s.log)
		for _, e := range entries {
			if err := repo.SetEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch cache write failed: %w", err)
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
