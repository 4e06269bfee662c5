// Package conflict decides whether a local and a remote version of an entry
// genuinely disagree, auto-resolves the safe cases and queues the rest for a
// human.
//
// Ordering between the two sides is a timestamp heuristic, not a proven
// conflict-free replication scheme: a local edit less than a second older
// than the remote write is not casually overridden, while a remote write
// more than a minute newer simply wins. Everything inside that ambiguous
// window needs arbitration. No vector clocks or causal metadata exist, so
// the exact thresholds below are load-bearing for behavioral compatibility.
package conflict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
)

const (
	// clockSkewTolerance: a local version this much newer than remote wins
	// implicitly (protects freshly-made local edits from slightly-newer
	// remote writes racing in).
	clockSkewTolerance = time.Second

	// remoteFreshness: a remote version this much newer than local wins
	// implicitly (a substantially later write should not be blocked by a
	// stale local copy).
	remoteFreshness = 60 * time.Second
)

// criticalFields are too consequential to merge by guesswork. If local and
// remote disagree on any of them, automatic entry-data merge is refused and
// the conflict goes to the user.
var criticalFields = []string{
	"score",
	"time",
	"faults",
	"placement",
	"qualifying_result",
	"check_in_status",
	"running_order",
}

// EntryWriter is the backend-facing entry update path used to persist a
// chosen resolution.
type EntryWriter interface {
	PushEntryUpdate(ctx context.Context, entryID int64, data map[string]any) error
}

// Engine detects and resolves conflicts. Construct one per session with New
// and share it between the sync layer and the conflict UI.
type Engine struct {
	store  *Store
	writer EntryWriter
	log    logging.Logger
	now    func() time.Time
	newID  func() string
}

func New(store *Store, writer EntryWriter, log logging.Logger) *Engine {
	return &Engine{
		store:  store,
		writer: writer,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Detect decides whether local and remote genuinely conflict. It returns nil
// when no arbitration is needed:
//   - identical serialized payloads,
//   - local newer than remote beyond clock-skew tolerance (keep local),
//   - remote newer than local beyond the freshness threshold (accept remote).
//
// Otherwise the timestamps are too close to order safely; a pending Conflict
// is created, stored and returned.
func (e *Engine) Detect(ctx context.Context, entryID int64, local, remote map[string]any, typ models.ConflictType) *models.Conflict {
	if equalJSON(local, remote) {
		return nil
	}

	lt := snapshotTime(local)
	rt := snapshotTime(remote)

	if lt.Sub(rt) > clockSkewTolerance {
		return nil
	}
	if rt.Sub(lt) > remoteFreshness {
		return nil
	}

	c := models.Conflict{
		ID:              e.newID(),
		EntryID:         entryID,
		Type:            typ,
		Local:           copyMap(local),
		Remote:          copyMap(remote),
		LocalUpdatedAt:  lt,
		RemoteUpdatedAt: rt,
		DetectedAt:      e.now(),
		Status:          models.ConflictPending,
	}
	e.store.Put(ctx, c)

	e.log.Warn(ctx, "conflict detected",
		"conflict_id", c.ID, "entry_id", entryID, "type", string(typ),
		"local_updated_at", lt, "remote_updated_at", rt)

	return &c
}

// Verdict is Reconcile's answer: how an incoming authoritative entry should
// combine with a locally-edited copy.
type Verdict int

const (
	// VerdictKeepLocal keeps the pending edit's fields on top of the remote
	// entry (the pending change stays queued).
	VerdictKeepLocal Verdict = iota

	// VerdictAcceptRemote takes the remote entry wholesale; the pending edit
	// is stale and must be dropped.
	VerdictAcceptRemote

	// VerdictUseMerged replaces both sides with the synthesized payload.
	VerdictUseMerged

	// VerdictNeedsUser means a pending Conflict was stored; the local edit
	// stays visible until the user arbitrates.
	VerdictNeedsUser
)

// Reconcile is the server-update path's entry point: called when an incoming
// entry collides with a pending local edit. The implicit-winner windows
// settle most collisions without recording anything; the ambiguous rest go
// through Detect and an AutoResolve attempt. An auto-resolution is recorded
// as a closed conflict but not pushed from here: the winning payload flows
// through the normal sync path, so the backend write stays in one place.
// The payload return is non-nil only for VerdictUseMerged.
func (e *Engine) Reconcile(ctx context.Context, entryID int64, local, remote map[string]any, typ models.ConflictType) (Verdict, map[string]any) {
	if equalJSON(local, remote) {
		return VerdictKeepLocal, nil
	}

	lt := snapshotTime(local)
	rt := snapshotTime(remote)

	if lt.Sub(rt) > clockSkewTolerance {
		return VerdictKeepLocal, nil
	}
	if rt.Sub(lt) > remoteFreshness {
		return VerdictAcceptRemote, nil
	}

	c := e.Detect(ctx, entryID, local, remote, typ)
	if c == nil {
		return VerdictKeepLocal, nil
	}

	res := e.AutoResolve(c)
	if res == nil {
		return VerdictNeedsUser, nil
	}

	c.Status = models.ConflictResolved
	c.Resolution = res.Action
	if res.Action == models.ResolutionMerge {
		c.Merged = copyMap(res.Data)
	}
	e.store.Put(ctx, *c)

	e.log.Info(ctx, "conflict auto-resolved",
		"conflict_id", c.ID, "entry_id", entryID, "action", string(res.Action))

	switch res.Action {
	case models.ResolutionLocal:
		return VerdictKeepLocal, nil
	case models.ResolutionRemote:
		return VerdictAcceptRemote, nil
	default:
		return VerdictUseMerged, res.Data
	}
}

// AutoResolve attempts to settle c without user input. It returns the
// proposed resolution, or nil when no strategy applies and the conflict must
// go to the user. The conflict itself is not mutated; callers pass the
// proposal to Resolve.
func (e *Engine) AutoResolve(c *models.Conflict) *models.Resolution {
	switch c.Type {
	case models.ConflictTypeEntryData:
		merged := tryMergeEntryData(c.Local, c.Remote)
		if merged == nil {
			return nil
		}
		return &models.Resolution{Action: models.ResolutionMerge, Data: merged}

	case models.ConflictTypeStatus:
		// Status only moves forward during an event; the less advanced
		// side is stale. Ties fall through to manual arbitration.
		localRank := statusRank(c.Local)
		remoteRank := statusRank(c.Remote)
		switch {
		case localRank > remoteRank:
			return &models.Resolution{Action: models.ResolutionLocal, Data: copyMap(c.Local)}
		case remoteRank > localRank:
			return &models.Resolution{Action: models.ResolutionRemote, Data: copyMap(c.Remote)}
		default:
			return nil
		}

	case models.ConflictTypeScore:
		// Scores are atomic: the later write wins outright, no merging.
		switch {
		case c.LocalUpdatedAt.After(c.RemoteUpdatedAt):
			return &models.Resolution{Action: models.ResolutionLocal, Data: copyMap(c.Local)}
		case c.RemoteUpdatedAt.After(c.LocalUpdatedAt):
			return &models.Resolution{Action: models.ResolutionRemote, Data: copyMap(c.Remote)}
		default:
			return nil
		}
	}

	return nil
}

// tryMergeEntryData builds a field-level merge: start from remote, then
// overlay every defined local field whose value differs from remote. This
// recovers non-conflicting simultaneous edits (a local note next to a remote
// handler change). Refused outright when any critical field diverges.
//
// Known heuristic: when both sides edited the same non-critical field, local
// wins. That matches the shipped behavior and is intentional.
func tryMergeEntryData(local, remote map[string]any) map[string]any {
	for _, k := range criticalFields {
		if !equalJSON(local[k], remote[k]) {
			return nil
		}
	}

	merged := copyMap(remote)
	for k, lv := range local {
		if lv == nil {
			continue
		}
		if !equalJSON(lv, merged[k]) {
			merged[k] = lv
		}
	}
	return merged
}

// Resolve marks a pending conflict resolved and persists the chosen payload
// through the backend entry-update path. If that write fails the conflict
// reverts to pending and the error is re-raised, so the resolution is
// retried rather than silently lost.
func (e *Engine) Resolve(ctx context.Context, conflictID string, res models.Resolution) error {
	c, ok := e.store.Get(conflictID)
	if !ok {
		return fmt.Errorf("conflict %s: %w", conflictID, common.ErrConflictNotFound)
	}
	if c.Status != models.ConflictPending {
		return fmt.Errorf("conflict %s: %w", conflictID, common.ErrConflictClosed)
	}

	var payload map[string]any
	switch res.Action {
	case models.ResolutionLocal:
		payload = c.Local
	case models.ResolutionRemote:
		payload = c.Remote
	case models.ResolutionMerge:
		if res.Data == nil {
			return fmt.Errorf("conflict %s: merge resolution requires a payload", conflictID)
		}
		payload = res.Data
		c.Merged = copyMap(res.Data)
	default:
		return fmt.Errorf("conflict %s: unknown resolution action %q", conflictID, res.Action)
	}

	c.Status = models.ConflictResolved
	c.Resolution = res.Action
	e.store.Put(ctx, c)

	if err := e.writer.PushEntryUpdate(ctx, c.EntryID, payload); err != nil {
		c.Status = models.ConflictPending
		c.Resolution = ""
		c.Merged = nil
		e.store.Put(ctx, c)
		return fmt.Errorf("failed to persist resolution for conflict %s: %w", conflictID, err)
	}

	e.log.Info(ctx, "conflict resolved",
		"conflict_id", conflictID, "entry_id", c.EntryID, "action", string(res.Action))
	return nil
}

// Ignore is the explicit user choice to keep the remote version and discard
// the local diff. No backend write happens: remote is already authoritative.
func (e *Engine) Ignore(ctx context.Context, conflictID string) error {
	c, ok := e.store.Get(conflictID)
	if !ok {
		return fmt.Errorf("conflict %s: %w", conflictID, common.ErrConflictNotFound)
	}
	if c.Status != models.ConflictPending {
		return fmt.Errorf("conflict %s: %w", conflictID, common.ErrConflictClosed)
	}

	c.Status = models.ConflictIgnored
	c.Resolution = models.ResolutionRemote
	e.store.Put(ctx, c)

	e.log.Info(ctx, "conflict ignored", "conflict_id", conflictID, "entry_id", c.EntryID)
	return nil
}

// PendingConflicts lists conflicts awaiting a decision.
func (e *Engine) PendingConflicts() []models.Conflict {
	return e.store.Pending()
}

// Store exposes the underlying conflict store, mainly for full listings.
func (e *Engine) Store() *Store {
	return e.store
}

// ClearResolvedConflicts purges terminal conflicts and returns the count.
func (e *Engine) ClearResolvedConflicts(ctx context.Context) int {
	return e.store.PurgeClosed(ctx)
}

func statusRank(snapshot map[string]any) int {
	s, _ := snapshot[models.FieldStatus].(string)
	return models.EntryStatus(s).Rank()
}

// snapshotTime extracts the updated_at timestamp from a flattened snapshot.
// Missing or malformed values read as the zero time, which the tolerance
// windows then treat as "very old".
func snapshotTime(snapshot map[string]any) time.Time {
	switch v := snapshot[models.FieldUpdatedAt].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// equalJSON compares two values by canonical JSON form (encoding/json emits
// map keys sorted, so equal payloads serialize identically).
func equalJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
