package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hitmeter/internal/audit"
	"hitmeter/internal/config"
	"hitmeter/internal/model"
	"hitmeter/internal/snapshot"
	"hitmeter/internal/storage"
)

// Engine owns the window state and serializes every operation behind one
// lock: eviction plus the read or mutation it precedes form a single
// critical section, so a caller never observes the total and the group map
// mid-decrement.
//
// Time only advances through the timestamps handed to Record and the query
// methods. The engine never consults a clock for eviction, which keeps a
// replayed command sequence deterministic.
type Engine struct {
	logger    *slog.Logger
	snapshots *snapshot.Store
	audit     *audit.Store
	store     storage.Store
	started   time.Time

	mu     sync.Mutex
	window *WindowState
}

func NewEngine(cfg *config.Config, logger *slog.Logger, snapshotStore *snapshot.Store, auditStore *audit.Store, store storage.Store) *Engine {
	windowSec := int64(60)
	if cfg != nil && cfg.Window.Seconds > 0 {
		windowSec = cfg.Window.Seconds
	}
	return &Engine{
		logger:    logger,
		snapshots: snapshotStore,
		audit:     auditStore,
		store:     store,
		started:   time.Now().UTC(),
		window:    NewWindowState(windowSec),
	}
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	e.window.SetWindowSec(cfg.Window.Seconds)
	e.mu.Unlock()
}

// Start consumes record-only sources. Queries never travel this path; they
// need a response and call the engine directly.
func (e *Engine) Start(ctx context.Context, in <-chan model.Hit) {
	go func() {
		for {
			select {
			case hit := <-in:
				e.Record(hit)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Record evicts at the hit's timestamp, appends it, and feeds the side
// stores. It cannot fail; a well-typed hit is always counted.
func (e *Engine) Record(hit model.Hit) {
	e.mu.Lock()
	e.window.Evict(hit.Timestamp)
	e.window.Add(hit)
	groupCount := e.window.GroupCount(hit.Group)
	windowSec := e.window.WindowSec()
	e.mu.Unlock()

	if e.snapshots != nil {
		e.snapshots.Update(model.GroupSnapshot{
			Group:     hit.Group,
			Count:     groupCount,
			WindowSec: windowSec,
			AsOf:      hit.Timestamp,
		})
	}
	if e.audit != nil {
		e.audit.Add(hit)
	}
	if e.store != nil {
		if err := e.store.SaveHit(context.Background(), hit); err != nil && e.logger != nil {
			e.logger.Warn("journal hit failed", "group", hit.Group, "err", err)
		}
	}
}

// Total returns the number of hits in the window at ts.
func (e *Engine) Total(ts int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window.Evict(ts)
	return e.window.Total()
}

// Group returns the in-window count for one group at ts, zero for a group
// never seen or fully evicted.
func (e *Engine) Group(ts int64, group string) int {
	e.mu.Lock()
	e.window.Evict(ts)
	count := e.window.GroupCount(group)
	windowSec := e.window.WindowSec()
	e.mu.Unlock()

	if e.snapshots != nil {
		e.snapshots.Update(model.GroupSnapshot{
			Group:     group,
			Count:     count,
			WindowSec: windowSec,
			AsOf:      ts,
		})
	}
	return count
}

// Users returns the per-user breakdown for one group at ts, ascending by
// user. The result is an owned copy; an empty breakdown is a nil slice.
func (e *Engine) Users(ts int64, group string) []model.UserCount {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window.Evict(ts)
	return e.window.UserBreakdown(group)
}

// Snapshot evicts at ts, captures every group's current count sorted by
// group name, and journals the capture when storage is configured.
func (e *Engine) Snapshot(ts int64) []model.GroupSnapshot {
	e.mu.Lock()
	e.window.Evict(ts)
	groups := e.window.Groups()
	windowSec := e.window.WindowSec()
	e.mu.Unlock()

	out := make([]model.GroupSnapshot, 0, len(groups))
	for group, count := range groups {
		out = append(out, model.GroupSnapshot{
			Group:     group,
			Count:     count,
			WindowSec: windowSec,
			AsOf:      ts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })

	if e.snapshots != nil {
		for _, snap := range out {
			e.snapshots.Update(snap)
		}
	}
	if e.store != nil {
		if err := e.store.SaveSnapshots(context.Background(), out); err != nil && e.logger != nil {
			e.logger.Warn("journal snapshots failed", "err", err)
		}
	}
	return out
}

// Len reports how many hits the window holds without advancing time.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Len()
}

func (e *Engine) WindowSec() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.WindowSec()
}

func (e *Engine) Started() time.Time {
	return e.started
}

// Reset drops the window and the side stores.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.window.Reset()
	e.mu.Unlock()
	if e.snapshots != nil {
		e.snapshots.Clear()
	}
	if e.audit != nil {
		e.audit.Clear()
	}
}
