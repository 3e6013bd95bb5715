package audit

import (
	"sync"
	"time"

	"hitmeter/internal/model"
)

// Store is a fixed-size ring of the most recently accepted hits.
type Store struct {
	mu    sync.RWMutex
	buf   []model.AuditEntry
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(h model.Hit) {
	entry := model.AuditEntry{ReceivedAt: time.Now().UTC(), Hit: h}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, entry)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = entry
}

func (s *Store) List(limit int) []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.AuditEntry, 0, limit)
	start := len(s.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, 0)
	for _, entry := range s.buf {
		if !entry.ReceivedAt.Before(ts) {
			out = append(out, entry)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
