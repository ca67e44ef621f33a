package lifecycle

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/sched"
	"github.com/manyworlds/server/internal/world"
)

// Eviction unloads worlds that stay empty past the grace period. Timers are
// armed when a world's last occupant leaves and cancelled the moment anyone
// enters; a timer that fires re-validates emptiness before unloading, so a
// cancel that loses the race is harmless.
type Eviction struct {
	m     *Manager
	grace time.Duration

	mu    sync.Mutex
	armed map[string]*sched.Delayed
}

func newEviction(m *Manager, grace time.Duration) *Eviction {
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Eviction{
		m:     m,
		grace: grace,
		armed: make(map[string]*sched.Delayed),
	}
}

// OnEnter cancels a pending eviction for the world.
func (e *Eviction) OnEnter(worldID string) {
	e.mu.Lock()
	d, ok := e.armed[worldID]
	if ok {
		delete(e.armed, worldID)
	}
	e.mu.Unlock()
	if ok {
		d.Cancel()
		e.m.log.Debug("eviction cancelled", zap.String("world", worldID))
	}
}

// OnLeave arms an eviction timer if the world is now empty. excludeUser is
// a presence the registry may still count for the departing user. Arming an
// already-armed world is a no-op so the grace period never restarts.
func (e *Eviction) OnLeave(worldID, excludeUser string) {
	if worldID == "" || worldID == e.m.defaultID {
		return
	}
	if e.m.occ.CountExcluding(worldID, excludeUser) > 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.armed[worldID]; ok {
		return
	}
	e.armed[worldID] = e.m.lanes.GlobalAfter(e.grace, func() {
		e.fire(worldID)
	})
	e.m.log.Debug("eviction armed",
		zap.String("world", worldID),
		zap.Duration("grace", e.grace))
}

// Drop discards any pending eviction without firing it. Used when the world
// is being deleted or disabled through the explicit path.
func (e *Eviction) Drop(worldID string) {
	e.mu.Lock()
	d, ok := e.armed[worldID]
	if ok {
		delete(e.armed, worldID)
	}
	e.mu.Unlock()
	if ok {
		d.Cancel()
	}
}

// fire runs on the global lane after the grace period. State may have moved
// since arming, so everything is re-checked.
func (e *Eviction) fire(worldID string) {
	e.mu.Lock()
	delete(e.armed, worldID)
	e.mu.Unlock()

	if e.m.occ.Count(worldID) > 0 {
		return
	}
	w := e.m.store.World(worldID)
	if w == nil {
		return
	}
	primary := world.StorageName(w.OwnerName, w.Name, world.DimPrimary)
	if !e.m.regions.IsLoaded(primary) {
		return
	}
	if err := e.m.unload(worldID); err != nil {
		// Reported, not retried here; the sweep will pick the world up again.
		e.m.log.Error("eviction unload failed",
			zap.String("world", worldID), zap.Error(err))
		return
	}
	e.m.log.Info("idle world evicted", zap.String("world", worldID))
}

// sweep arms timers for any loaded, empty, unarmed world. Covers events lost
// to crashes of the arming path; runs on the global lane.
func (e *Eviction) sweep() {
	for _, name := range e.m.regions.Loaded() {
		w := e.m.store.WorldByStorageName(name)
		if w == nil || w.ID == e.m.defaultID {
			continue
		}
		if e.m.occ.Count(w.ID) > 0 {
			continue
		}
		e.OnLeave(w.ID, "")
	}
}
