package snapshot

import (
	"sync"
	"time"

	"hitmeter/internal/model"
)

// Store caches the last observed in-window count per group. It is a
// convenience view for the API; the engine's window state stays the source
// of truth.
type Store struct {
	mu        sync.RWMutex
	byGroup   map[string]model.GroupSnapshot
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byGroup:   make(map[string]model.GroupSnapshot),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Update(snap model.GroupSnapshot) {
	if snap.Group == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byGroup[snap.Group] = snap
	s.updatedAt[snap.Group] = time.Now().UTC()
	if len(s.byGroup) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(group string) (model.GroupSnapshot, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byGroup[group]
	if !ok {
		return model.GroupSnapshot{}, time.Time{}, false
	}
	return snap, s.updatedAt[group], true
}

func (s *Store) GetAll() map[string]model.GroupSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.GroupSnapshot, len(s.byGroup))
	for group, snap := range s.byGroup {
		out[group] = snap
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestGroup string
	var oldest time.Time
	for group, ts := range s.updatedAt {
		if oldestGroup == "" || ts.Before(oldest) {
			oldestGroup = group
			oldest = ts
		}
	}
	if oldestGroup != "" {
		delete(s.byGroup, oldestGroup)
		delete(s.updatedAt, oldestGroup)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byGroup = make(map[string]model.GroupSnapshot)
	s.updatedAt = make(map[string]time.Time)
}
