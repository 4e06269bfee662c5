// Package preload bulk-downloads everything needed to run one show fully
// offline: classes, trials and entries land in the durable cache under the
// show's bulk keys, and a TTL-bound snapshot record marks the download.
package preload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ringsideapp/ringside/internal/backend"
	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/ringsideapp/ringside/internal/store"
)

// Per-row size heuristic for the pre-download estimate. Deliberately crude;
// the point is a user-facing "this will be about a megabyte" warning.
const (
	classRowBytes = 1024
	trialRowBytes = 1024
	entryRowBytes = 2048
)

const (
	// DefaultTTL is how long a preloaded show stays trusted.
	DefaultTTL = 7 * 24 * time.Hour

	// DefaultBatchSize is how many entries are fetched per page.
	DefaultBatchSize = 50
)

// Stage names reported through the progress callback, in pipeline order.
type Stage string

const (
	StagePreparing Stage = "preparing"
	StageClasses   Stage = "classes"
	StageTrials    Stage = "trials"
	StageEntries   Stage = "entries"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// Progress is one unit-of-work report during a preload.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Item    string
}

// Options configures one preload run.
type Options struct {
	LicenseKey string
	Label      string

	// TTL for the snapshot; DefaultTTL when zero.
	TTL time.Duration

	// BatchSize for entry pages; DefaultBatchSize when zero or negative.
	BatchSize int

	// OnProgress, when set, is invoked after every unit of work.
	OnProgress func(Progress)
}

// Estimate is the pre-download size approximation.
type Estimate struct {
	Counts         models.ShowCounts
	EstimatedBytes int64
}

// Manager runs preloads and owns the snapshot lifecycle.
type Manager struct {
	client backend.Client
	store  *store.Store
	log    logging.Logger
	now    func() time.Time
}

func NewManager(client backend.Client, st *store.Store, log logging.Logger) *Manager {
	return &Manager{client: client, store: st, log: log, now: time.Now}
}

// Cache keys for one show's bulk data. DeletePreloadedShow must cover all of
// these plus the snapshot row.
func classesKey(license string) string { return "show:" + license + ":classes" }
func trialsKey(license string) string  { return "show:" + license + ":trials" }
func entriesKey(license string) string { return "show:" + license + ":entries" }
func metaKey(license string) string    { return "show:" + license + ":metadata" }

// EstimateShowSize queries row counts and applies the per-row heuristic.
func (m *Manager) EstimateShowSize(ctx context.Context, licenseKey string) (Estimate, error) {
	counts, err := m.client.ShowCounts(ctx, licenseKey)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to count show %q: %w", licenseKey, err)
	}
	return Estimate{
		Counts: counts,
		EstimatedBytes: int64(counts.Classes)*classRowBytes +
			int64(counts.Trials)*trialRowBytes +
			int64(counts.Entries)*entryRowBytes,
	}, nil
}

// PreloadShow runs the five-stage pipeline: preparing, classes, trials,
// entries (paged), complete. Cancellation is cooperative: ctx is polled
// between batches, never mid-request, so at most one excess batch can land
// after cancellation. Any failure reports the error stage with the counts
// reached and re-raises; snapshot metadata is written only on full success.
func (m *Manager) PreloadShow(ctx context.Context, opts Options) (*models.ShowSnapshot, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	report := opts.OnProgress
	if report == nil {
		report = func(Progress) {}
	}

	var loaded models.ShowCounts
	fail := func(err error) (*models.ShowSnapshot, error) {
		report(Progress{Stage: StageError, Current: loaded.Entries, Total: loaded.Entries})
		m.log.Error(ctx, "preload failed", "license", opts.LicenseKey,
			"classes", loaded.Classes, "trials", loaded.Trials, "entries", loaded.Entries, "error", err)
		return nil, err
	}

	report(Progress{Stage: StagePreparing, Current: 0, Total: 1})

	counts, err := m.client.ShowCounts(ctx, opts.LicenseKey)
	if err != nil {
		return fail(fmt.Errorf("failed to prepare preload of %q: %w", opts.LicenseKey, err))
	}
	info, err := m.client.ShowInfo(ctx, opts.LicenseKey)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch show info for %q: %w", opts.LicenseKey, err))
	}
	report(Progress{Stage: StagePreparing, Current: 1, Total: 1, Item: info.Name})

	// Classes.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	classes, err := m.client.Classes(ctx, opts.LicenseKey)
	if err != nil {
		return fail(fmt.Errorf("failed to download classes: %w", err))
	}
	if err := m.store.Cache.Set(ctx, classesKey(opts.LicenseKey), classes, ttl); err != nil {
		return fail(err)
	}
	loaded.Classes = len(classes)
	report(Progress{Stage: StageClasses, Current: loaded.Classes, Total: counts.Classes})

	// Trials.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	trials, err := m.client.Trials(ctx, opts.LicenseKey)
	if err != nil {
		return fail(fmt.Errorf("failed to download trials: %w", err))
	}
	if err := m.store.Cache.Set(ctx, trialsKey(opts.LicenseKey), trials, ttl); err != nil {
		return fail(err)
	}
	loaded.Trials = len(trials)
	report(Progress{Stage: StageTrials, Current: loaded.Trials, Total: counts.Trials})

	// Entries, paged.
	var entries []models.Entry
	for offset := 0; offset < counts.Entries || offset == 0; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		page, err := m.client.EntriesPage(ctx, opts.LicenseKey, offset, batchSize)
		if err != nil {
			return fail(fmt.Errorf("failed to download entries at offset %d: %w", offset, err))
		}
		entries = append(entries, page...)
		loaded.Entries = len(entries)
		report(Progress{Stage: StageEntries, Current: loaded.Entries, Total: counts.Entries})
		if len(page) < batchSize {
			break
		}
	}
	if err := m.store.Cache.Set(ctx, entriesKey(opts.LicenseKey), entries, ttl); err != nil {
		return fail(err)
	}

	showMeta := map[string]any{
		"license_key": opts.LicenseKey,
		"name":        info.Name,
		"club":        info.Club,
		"counts":      loaded,
	}
	if err := m.store.Cache.Set(ctx, metaKey(opts.LicenseKey), showMeta, ttl); err != nil {
		return fail(err)
	}

	label := opts.Label
	if label == "" {
		label = info.Name
	}

	snapshot := models.ShowSnapshot{
		LicenseKey:   opts.LicenseKey,
		Label:        label,
		DownloadedAt: m.now(),
		ExpiresAt:    m.now().Add(ttl),
		SizeBytes: int64(loaded.Classes)*classRowBytes +
			int64(loaded.Trials)*trialRowBytes +
			int64(loaded.Entries)*entryRowBytes,
		ClassCount: loaded.Classes,
		TrialCount: loaded.Trials,
		EntryCount: loaded.Entries,
	}
	if err := m.store.Shows.Upsert(ctx, snapshot); err != nil {
		return fail(err)
	}

	report(Progress{Stage: StageComplete, Current: loaded.Entries, Total: loaded.Entries})
	m.log.Info(ctx, "show preloaded", "license", opts.LicenseKey,
		"classes", loaded.Classes, "trials", loaded.Trials, "entries", loaded.Entries)
	return &snapshot, nil
}

// GetPreloadedShow returns the snapshot for a show, or nil when absent. An
// expired snapshot is deleted on access (same lazy expiry as the cache) and
// reported absent.
func (m *Manager) GetPreloadedShow(ctx context.Context, licenseKey string) (*models.ShowSnapshot, error) {
	s, err := m.store.Shows.Get(ctx, licenseKey)
	if err != nil || s == nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		m.deleteShowData(ctx, licenseKey)
		return nil, nil
	}
	return s, nil
}

// IsShowPreloaded reports whether a live snapshot exists for the show.
func (m *Manager) IsShowPreloaded(ctx context.Context, licenseKey string) bool {
	s, err := m.GetPreloadedShow(ctx, licenseKey)
	return err == nil && s != nil
}

// GetAllPreloadedShows lists live snapshots, deleting any found expired.
func (m *Manager) GetAllPreloadedShows(ctx context.Context) ([]models.ShowSnapshot, error) {
	all, err := m.store.Shows.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	live := make([]models.ShowSnapshot, 0, len(all))
	for _, s := range all {
		if s.Expired(m.now()) {
			m.deleteShowData(ctx, s.LicenseKey)
			continue
		}
		live = append(live, s)
	}
	return live, nil
}

// DeletePreloadedShow removes the snapshot record and all four bulk cache
// keys. Each delete is independently best-effort so one failure never leaves
// the rest orphaned.
func (m *Manager) DeletePreloadedShow(ctx context.Context, licenseKey string) {
	m.deleteShowData(ctx, licenseKey)
}

func (m *Manager) deleteShowData(ctx context.Context, licenseKey string) {
	if err := m.store.Shows.Delete(ctx, licenseKey); err != nil {
		m.log.Warn(ctx, "failed to delete show snapshot", "license", licenseKey, "error", err)
	}
	for _, key := range []string{
		classesKey(licenseKey), trialsKey(licenseKey), entriesKey(licenseKey), metaKey(licenseKey),
	} {
		if err := m.store.Cache.Delete(ctx, key); err != nil {
			m.log.Warn(ctx, "failed to delete preloaded data", "key", key, "error", err)
		}
	}
}

// CleanupExpiredShows sweeps all snapshots and removes the expired ones,
// returning how many were removed. Meant for manual or periodic invocation;
// lazy expiry keeps reads correct without it.
func (m *Manager) CleanupExpiredShows(ctx context.Context) (int, error) {
	all, err := m.store.Shows.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range all {
		if s.Expired(m.now()) {
			m.deleteShowData(ctx, s.LicenseKey)
			removed++
		}
	}
	return removed, nil
}

// ExtendShowExpiration resets a snapshot's expiry to now + ttl (DefaultTTL
// when ttl is zero) without re-downloading anything.
func (m *Manager) ExtendShowExpiration(ctx context.Context, licenseKey string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	err := m.store.Shows.UpdateExpiry(ctx, licenseKey, m.now().Add(ttl))
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%q: %w", licenseKey, common.ErrShowNotPreloaded)
	}
	return err
}

// PreloadedEntries returns the bulk-cached entry rows for a show, for
// seeding the state manager when starting offline.
func (m *Manager) PreloadedEntries(ctx context.Context, licenseKey string) ([]models.Entry, bool) {
	var entries []models.Entry
	if !m.store.Cache.GetJSON(ctx, entriesKey(licenseKey), &entries) {
		return nil, false
	}
	return entries, true
}

// PreloadedClasses returns the bulk-cached class rows for a show.
func (m *Manager) PreloadedClasses(ctx context.Context, licenseKey string) ([]json.RawMessage, bool) {
	var classes []json.RawMessage
	if !m.store.Cache.GetJSON(ctx, classesKey(licenseKey), &classes) {
		return nil, false
	}
	return classes, true
}
