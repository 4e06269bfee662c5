package conflict

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
)

// Cache key under which detected conflicts persist between processes.
const conflictsCacheKey = "state:conflicts"

// CacheStore is the slice of the durable cache the conflict store needs to
// survive process restarts. Satisfied by store.CacheRepository.
type CacheStore interface {
	GetJSON(ctx context.Context, key string, v any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Store holds detected conflicts. The browser original kept these in a
// module-scope map that lived as long as the tab; a CLI process is far
// shorter-lived, so a Store built with NewDurableStore writes through to the
// cache table and reloads on construction. Persistence is best-effort: a
// failed write is logged and the in-memory copy stays authoritative for the
// session.
type Store struct {
	mu        sync.RWMutex
	conflicts map[string]models.Conflict

	cache CacheStore
	log   logging.Logger
}

// NewStore returns an empty in-memory conflict store.
func NewStore() *Store {
	return &Store{conflicts: make(map[string]models.Conflict)}
}

// NewDurableStore returns a store seeded from the cache table that writes
// back on every mutation, so conflicts detected by one invocation are visible
// to the next.
func NewDurableStore(ctx context.Context, cache CacheStore, log logging.Logger) *Store {
	s := NewStore()
	s.cache = cache
	s.log = log

	var stored []models.Conflict
	if cache.GetJSON(ctx, conflictsCacheKey, &stored) {
		for _, c := range stored {
			s.conflicts[c.ID] = c
		}
	}
	return s
}

// Put inserts or replaces a conflict by ID.
func (s *Store) Put(ctx context.Context, c models.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[c.ID] = c
	s.persist(ctx)
}

// Get returns a conflict by ID.
func (s *Store) Get(id string) (models.Conflict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conflicts[id]
	return c, ok
}

// Pending lists conflicts still awaiting resolution, oldest first.
func (s *Store) Pending() []models.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Conflict
	for _, c := range s.conflicts {
		if c.Status == models.ConflictPending {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.Before(result[j].DetectedAt)
	})
	return result
}

// All lists every conflict regardless of status, oldest first.
func (s *Store) All() []models.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.Before(result[j].DetectedAt)
	})
	return result
}

// PurgeClosed drops every resolved or ignored conflict and returns how many
// were removed.
func (s *Store) PurgeClosed(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.conflicts {
		if c.Status != models.ConflictPending {
			delete(s.conflicts, id)
			removed++
		}
	}
	if removed > 0 {
		s.persist(ctx)
	}
	return removed
}

// persist snapshots the conflict map to the cache table. The caller holds the
// mutex.
func (s *Store) persist(ctx context.Context) {
	if s.cache == nil {
		return
	}

	all := make([]models.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].DetectedAt.Before(all[j].DetectedAt)
	})

	if err := s.cache.Set(ctx, conflictsCacheKey, all, 0); err != nil {
		s.log.Warn(ctx, "failed to persist conflicts", "error", err)
	}
}
