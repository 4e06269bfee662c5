// Package syncer drains the pending-change queue into the backend. Each
// queued change is pushed with bounded backoff; confirmed writes clear their
// pending marker, failed ones stay queued for the next pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ringsideapp/ringside/internal/conflict"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/ringsideapp/ringside/internal/state"
	"github.com/sethvargo/go-retry"
)

const (
	retryBase     = 500 * time.Millisecond
	retryMaxTries = 3
)

// ConflictSource exposes the conflicts still awaiting arbitration. Satisfied
// by conflict.Engine.
type ConflictSource interface {
	PendingConflicts() []models.Conflict
}

// Pusher is the background pending-sync consumer.
type Pusher struct {
	state     *state.Manager
	writer    conflict.EntryWriter
	conflicts ConflictSource
	log       logging.Logger
}

func New(st *state.Manager, writer conflict.EntryWriter, conflicts ConflictSource, log logging.Logger) *Pusher {
	return &Pusher{state: st, writer: writer, conflicts: conflicts, log: log}
}

// Result summarizes one sync pass.
type Result struct {
	Synced int
	Failed int
	Held   int
}

// SyncOnce pushes every queued change. A change that fails after retries is
// left intact so the next pass picks it up; failures are aggregated into the
// returned error rather than aborting the pass. A change whose entry has a
// conflict awaiting arbitration is held back entirely: pushing it would
// overwrite the disputed remote value before anyone decided.
func (p *Pusher) SyncOnce(ctx context.Context) (Result, error) {
	changes := p.state.PendingChanges()
	if len(changes) == 0 {
		return Result{}, nil
	}

	disputed := make(map[int64]bool)
	if p.conflicts != nil {
		for _, c := range p.conflicts.PendingConflicts() {
			disputed[c.EntryID] = true
		}
	}

	var result Result
	var errs []error

	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if disputed[change.EntryID] {
			result.Held++
			p.log.Debug(ctx, "holding change with unresolved conflict", "entry_id", change.EntryID)
			continue
		}

		if err := p.pushChange(ctx, change); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("entry %d: %w", change.EntryID, err))
			p.log.Warn(ctx, "pending change push failed, keeping queued",
				"entry_id", change.EntryID, "change_type", string(change.Type), "error", err)
			continue
		}

		if err := p.state.ClearPendingChange(ctx, change.EntryID); err != nil {
			// The backend write landed; a failed local clear is retried
			// on the next pass as a duplicate push, which the backend's
			// upsert semantics tolerate.
			p.log.Warn(ctx, "failed to clear confirmed change", "entry_id", change.EntryID, "error", err)
		}
		result.Synced++
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	p.log.Info(ctx, "sync pass complete", "synced", result.Synced)
	return result, nil
}

func (p *Pusher) pushChange(ctx context.Context, change models.PendingChange) error {
	backoff := retry.WithMaxRetries(retryMaxTries, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.writer.PushEntryUpdate(ctx, change.EntryID, map[string]any(change.Patch))
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Run performs a sync pass every interval until ctx is cancelled. Pass
// failures are logged and the loop keeps going; connectivity at venues comes
// and goes.
func (p *Pusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Debug(ctx, "sync pass incomplete", "error", err)
			}
		}
	}
}
