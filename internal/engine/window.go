package engine

import (
	"sort"

	"hitmeter/internal/model"
)

// WindowState keeps every hit inside a trailing window together with three
// aggregates derived from that log: the total, per-group counts, and
// per-group per-user counts. The aggregates are caches over the log and are
// adjusted in the same step as every log mutation.
//
// The log is ordered by insertion. Eviction walks from the front, so counts
// are only correct when Add is called with non-decreasing timestamps.
type WindowState struct {
	windowSec int64
	hits      []model.Hit
	head      int
	total     int
	groups    map[string]int
	users     map[string]map[string]int
}

// NewWindowState returns an empty window covering windowSec seconds,
// inclusive on both ends: at reference time T it holds [T-windowSec+1, T].
func NewWindowState(windowSec int64) *WindowState {
	if windowSec <= 0 {
		windowSec = 60
	}
	return &WindowState{
		windowSec: windowSec,
		hits:      make([]model.Hit, 0, 128),
		groups:    make(map[string]int),
		users:     make(map[string]map[string]int),
	}
}

func (w *WindowState) WindowSec() int64 {
	return w.windowSec
}

// SetWindowSec changes the window length. It takes effect at the next
// eviction; retained hits older than the new window fall out then.
func (w *WindowState) SetWindowSec(sec int64) {
	if sec > 0 {
		w.windowSec = sec
	}
}

// Add appends a hit and bumps all affected aggregates. Timestamps must not
// decrease across calls.
func (w *WindowState) Add(h model.Hit) {
	w.hits = append(w.hits, h)
	w.total++
	w.groups[h.Group]++
	if h.User != "" {
		uc, ok := w.users[h.Group]
		if !ok {
			uc = make(map[string]int)
			w.users[h.Group] = uc
		}
		uc[h.User]++
	}
}

// Evict drops every hit with timestamp < now-windowSec+1 from the front of
// the log, decrementing the aggregates as it goes. Keys are deleted the
// moment their count reaches zero, so a zero entry is never observable.
func (w *WindowState) Evict(now int64) {
	minTS := now - w.windowSec + 1
	for w.head < len(w.hits) {
		old := w.hits[w.head]
		if old.Timestamp >= minTS {
			break
		}
		w.total--
		if count := w.groups[old.Group]; count <= 1 {
			delete(w.groups, old.Group)
		} else {
			w.groups[old.Group] = count - 1
		}
		if old.User != "" {
			if uc, ok := w.users[old.Group]; ok {
				if count := uc[old.User]; count <= 1 {
					delete(uc, old.User)
				} else {
					uc[old.User] = count - 1
				}
				if len(uc) == 0 {
					delete(w.users, old.Group)
				}
			}
		}
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.hits) {
		w.hits = append([]model.Hit{}, w.hits[w.head:]...)
		w.head = 0
	}
}

// Total returns the number of hits in the window.
func (w *WindowState) Total() int {
	return w.total
}

// GroupCount returns the number of hits in the window for one group, zero
// when the group has none.
func (w *WindowState) GroupCount(group string) int {
	return w.groups[group]
}

// UserBreakdown returns the per-user counts of one group, ascending by user.
// Only hits that carried a user contribute. The slice is an owned copy.
func (w *WindowState) UserBreakdown(group string) []model.UserCount {
	uc, ok := w.users[group]
	if !ok {
		return nil
	}
	out := make([]model.UserCount, 0, len(uc))
	for user, count := range uc {
		out = append(out, model.UserCount{User: user, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// Groups returns a copy of the per-group counts.
func (w *WindowState) Groups() map[string]int {
	out := make(map[string]int, len(w.groups))
	for group, count := range w.groups {
		out[group] = count
	}
	return out
}

// Len reports how many hits the window currently holds.
func (w *WindowState) Len() int {
	return len(w.hits) - w.head
}

// Reset drops all state but keeps the window length.
func (w *WindowState) Reset() {
	w.hits = w.hits[:0]
	w.head = 0
	w.total = 0
	w.groups = make(map[string]int)
	w.users = make(map[string]map[string]int)
}
