package runtimebridge

import (
	"slices"
	"sync"
	"time"
)

const defaultStaleAfter = 15 * time.Second

// Store keeps the latest snapshot published by the bridge loop so readers
// on other goroutines never have to wait for the loop.
type Store struct {
	mu         sync.RWMutex
	staleAfter time.Duration
	latest     StoredSnapshot
	has        bool
}

func NewStore(staleAfter time.Duration) *Store {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Store{staleAfter: staleAfter}
}

func (s *Store) Update(snapshot Snapshot, now time.Time) {
	if s == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	snapshot.Subjects = slices.Clone(snapshot.Subjects)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = StoredSnapshot{Snapshot: snapshot, UpdatedAt: now.UTC()}
	s.has = true
}

// Latest returns the last snapshot regardless of age.
func (s *Store) Latest() (StoredSnapshot, bool) {
	if s == nil {
		return StoredSnapshot{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

// LatestFresh returns the last snapshot unless it is missing or older than
// the staleness window, in which case the reason says which.
func (s *Store) LatestFresh(now time.Time) (StoredSnapshot, bool, string) {
	if s == nil {
		return StoredSnapshot{}, false, "bridge_store_unavailable"
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.has {
		return StoredSnapshot{}, false, "bridge_snapshot_missing"
	}
	if now.Sub(s.latest.UpdatedAt) > s.staleAfter {
		return StoredSnapshot{}, false, "bridge_snapshot_stale"
	}
	return s.latest, true, ""
}

func (s *Store) StaleAfter() time.Duration {
	if s == nil {
		return defaultStaleAfter
	}
	return s.staleAfter
}
