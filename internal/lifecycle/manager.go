// Package lifecycle drives world state transitions: create, load, unload,
// delete, rename, and occupant movement between worlds. Structural work runs
// on the global coordinator lane; completion flows back through futures.
package lifecycle

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/manyworlds/server/internal/access"
	"github.com/manyworlds/server/internal/config"
	"github.com/manyworlds/server/internal/core/event"
	"github.com/manyworlds/server/internal/data"
	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/region"
	"github.com/manyworlds/server/internal/sched"
	"github.com/manyworlds/server/internal/scripting"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

// systemOwner owns the permanent default world.
const systemOwner = "system"

// Deps carries the manager's collaborators.
type Deps struct {
	Store     *store.Store
	Regions   *region.Manager
	Access    *access.Engine
	Occupancy *world.Occupancy
	Lanes     *sched.Lanes
	Bus       *event.Bus
	Types     *data.WorldTypeTable
	Scripts   *scripting.Engine
	Log       *zap.Logger
	Cfg       *config.Config
}

// CreateRequest describes a new world.
type CreateRequest struct {
	Owner   access.Subject
	Name    string
	GenType world.GenType
	Seed    int64
	SeedSet bool
}

// TeleportResult is resolved once an occupant has entered a world. Saved is
// the user's snapshot from their last visit to the partition, nil on a first
// entry.
type TeleportResult struct {
	World     *world.World
	Partition string
	Spawn     world.Spawn
	Mode      world.EntryMode
	Role      world.Role
	Saved     *world.PlayerState
}

// Stats is a point-in-time view of one world.
type Stats struct {
	World     *world.World
	Occupants int
	Loaded    bool
	Backups   int
}

// Manager is the world lifecycle manager.
type Manager struct {
	store   *store.Store
	regions *region.Manager
	access  *access.Engine
	occ     *world.Occupancy
	lanes   *sched.Lanes
	bus     *event.Bus
	types   *data.WorldTypeTable
	scripts *scripting.Engine
	log     *zap.Logger

	defaultName  string // display name of the permanent world
	maxNameLen   int
	defaultLimit int

	defaultID string // resolved at boot

	flight singleflight.Group
	evict  *Eviction

	// backupCascade removes a deleted world's archives from disk. Set by the
	// backup subsystem after construction.
	backupCascade func(worldID string)
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		store:        d.Store,
		regions:      d.Regions,
		access:       d.Access,
		occ:          d.Occupancy,
		lanes:        d.Lanes,
		bus:          d.Bus,
		types:        d.Types,
		scripts:      d.Scripts,
		log:          d.Log,
		defaultName:  d.Cfg.Worlds.DefaultWorld,
		maxNameLen:   d.Cfg.Worlds.MaxNameLength,
		defaultLimit: d.Cfg.Worlds.DefaultLimit,
	}
	m.evict = newEviction(m, d.Cfg.Eviction.GracePeriod)
	m.access.SetRelocator(m.Relocate)

	event.Subscribe(d.Bus, func(ev event.OccupantEntered) {
		m.evict.OnEnter(ev.WorldID)
	})
	event.Subscribe(d.Bus, func(ev event.OccupantLeft) {
		exclude := ""
		if ev.Implicit {
			exclude = ev.UserID
		}
		m.evict.OnLeave(ev.WorldID, exclude)
	})
	event.Subscribe(d.Bus, func(ev event.OccupantChangedWorld) {
		m.evict.OnEnter(ev.DestWorldID)
		m.evict.OnLeave(ev.SourceWorldID, ev.UserID)
	})
	event.Subscribe(d.Bus, func(ev event.OccupantRespawnRequested) {
		m.respawn(ev.UserID, ev.WorldID)
	})
	return m
}

// SetBackupCascade wires the backup subsystem's archive cleanup.
func (m *Manager) SetBackupCascade(fn func(worldID string)) { m.backupCascade = fn }

// Boot ensures the permanent default world exists and is loaded. Runs before
// any session is accepted.
func (m *Manager) Boot(ctx context.Context) error {
	home := m.store.WorldByName(systemOwner, m.defaultName)
	if home == nil {
		w, err := m.create(ctx, CreateRequest{
			Owner:   access.Subject{ID: systemOwner, Name: systemOwner},
			Name:    m.defaultName,
			GenType: world.GenDefault,
		})
		if err != nil {
			return err
		}
		home = w
	}
	m.defaultID = home.ID
	_, err := m.load(home.ID)
	if err != nil {
		return err
	}
	m.log.Info("default world ready",
		zap.String("world", home.ID),
		zap.String("name", home.Name))
	return nil
}

// DefaultWorldID returns the permanent world's id.
func (m *Manager) DefaultWorldID() string { return m.defaultID }

// Create builds a new world: record, primary partition, and auxiliary
// partitions. Auxiliary partition failures do not fail the operation; the
// primary is mandatory.
func (m *Manager) Create(req CreateRequest) *sched.Future[*world.World] {
	f := sched.NewFuture[*world.World]()
	go func() {
		key := "create:" + req.Owner.ID + ":" + world.FoldName(req.Name)
		v, err, _ := m.flight.Do(key, func() (any, error) {
			inner := sched.NewFuture[*world.World]()
			m.lanes.Global(func() {
				inner.Resolve(m.create(context.Background(), req))
			})
			return inner.Await(context.Background())
		})
		w, _ := v.(*world.World)
		f.Resolve(w, err)
	}()
	return f
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (*world.World, error) {
	if err := world.ValidateName(req.Name, m.maxNameLen); err != nil {
		return nil, err
	}
	if m.store.WorldByName(req.Owner.ID, req.Name) != nil {
		return nil, fault.Validationf("you already have a world named %s", req.Name)
	}
	owner, err := m.store.User(ctx, req.Owner.ID, req.Owner.Name)
	if err != nil {
		return nil, err
	}
	if req.Owner.ID != systemOwner && len(owner.OwnedWorlds) >= m.limitOf(owner) {
		return nil, fault.Validationf("world limit of %d reached", m.limitOf(owner))
	}

	genType := req.GenType
	if genType == "" {
		genType = world.GenDefault
	}
	preset := m.types.Get(string(genType))
	if preset == nil {
		return nil, fault.Validationf("unknown world type %s", genType)
	}
	seed := req.Seed
	if !req.SeedSet {
		seed = preset.DefaultSeed
		if seed == 0 {
			seed = rand.Int63()
		}
	}

	w := &world.World{
		ID:        world.NewID(),
		Name:      req.Name,
		OwnerID:   req.Owner.ID,
		OwnerName: req.Owner.Name,
		GenType:   genType,
		Seed:      seed,
		SeedSet:   true,
		CreatedAt: time.Now(),
		Enabled:   true,
		EntryMode: world.EntrySurvival,
		Spawn:     world.Spawn{X: preset.SpawnX, Y: preset.SpawnY, Z: preset.SpawnZ},
		Border: world.Border{
			Size:    preset.BorderSize,
			Damage:  preset.BorderDamage,
			Warning: preset.BorderWarning,
		},
		Members:        make(map[string]world.Role),
		PublicJoinRole: world.RoleVisitor,
	}
	if hook := m.scripts.OnWorldCreate(w); !hook.Allow {
		return nil, fault.Permissionf("world creation denied: %s", hook.Reason)
	}

	names := world.StorageNames(w.OwnerName, w.Name)
	meta := region.LevelMeta{WorldID: w.ID, GenType: genType, Seed: seed, CreatedAt: w.CreatedAt}
	if err := m.regions.Create(names[0], meta); err != nil {
		return nil, err
	}
	for _, name := range names[1:] {
		if err := m.regions.Create(name, meta); err != nil {
			// Auxiliary dimensions can be regenerated on demand.
			m.log.Warn("auxiliary partition creation failed",
				zap.String("partition", name), zap.Error(err))
		}
	}

	if err := m.store.PutWorld(ctx, w); err != nil {
		return nil, err
	}
	owner.OwnedWorlds[w.ID] = struct{}{}
	if err := m.store.PutUser(ctx, owner); err != nil {
		return nil, err
	}
	m.log.Info("world created",
		zap.String("world", w.ID),
		zap.String("name", w.Name),
		zap.String("owner", w.OwnerID),
		zap.Int64("seed", seed))
	return w, nil
}

// Load makes a world's partitions resident. Concurrent loads of the same
// world share one execution; loading a loaded world is a no-op.
func (m *Manager) Load(worldID string) *sched.Future[*world.World] {
	f := sched.NewFuture[*world.World]()
	go func() {
		v, err, _ := m.flight.Do("load:"+worldID, func() (any, error) {
			inner := sched.NewFuture[*world.World]()
			m.lanes.Global(func() {
				inner.Resolve(m.load(worldID))
			})
			return inner.Await(context.Background())
		})
		w, _ := v.(*world.World)
		f.Resolve(w, err)
	}()
	return f
}

func (m *Manager) load(worldID string) (*world.World, error) {
	w := m.store.World(worldID)
	if w == nil {
		return nil, fault.Missingf("world %s not found", worldID)
	}
	if !w.Enabled {
		return nil, fault.Permissionf("world %s is disabled", w.Name)
	}
	if hook := m.scripts.OnWorldLoad(w); !hook.Allow {
		return nil, fault.Permissionf("world load denied: %s", hook.Reason)
	}

	names := world.StorageNames(w.OwnerName, w.Name)
	if _, err := m.regions.Load(names[0]); err != nil {
		return nil, err
	}
	for _, name := range names[1:] {
		if !m.regions.Exists(name) {
			continue // legacy worlds may lack auxiliary partitions
		}
		if _, err := m.regions.Load(name); err != nil {
			m.log.Warn("auxiliary partition load failed",
				zap.String("partition", name), zap.Error(err))
		}
	}
	m.applyPolicy(w)
	return w, nil
}

// applyPolicy re-asserts the world's time, weather, and border policy on its
// resident partitions. Policies are enforcement state, not partition state,
// so they are re-applied after every load.
func (m *Manager) applyPolicy(w *world.World) {
	for _, name := range world.StorageNames(w.OwnerName, w.Name) {
		if !m.regions.IsLoaded(name) {
			continue
		}
		partition := name
		m.lanes.Region(partition, func() {
			m.log.Debug("policy applied",
				zap.String("partition", partition),
				zap.Int16("time_lock", int16(w.TimeLock)),
				zap.Int16("weather_lock", int16(w.WeatherLock)),
				zap.Float64("border", w.Border.Size))
		})
	}
}

// Unload evacuates a world's occupants and drops its partitions from
// residency, flushing each one. Unload failures are reported but every
// partition is still attempted.
func (m *Manager) Unload(worldID string) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	go func() {
		_, err, _ := m.flight.Do("unload:"+worldID, func() (any, error) {
			inner := sched.NewFuture[struct{}]()
			m.lanes.Global(func() {
				inner.Resolve(struct{}{}, m.unload(worldID))
			})
			return inner.Await(context.Background())
		})
		f.Resolve(struct{}{}, err)
	}()
	return f
}

func (m *Manager) unload(worldID string) error {
	w := m.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if worldID == m.defaultID {
		return fault.Validationf("the default world cannot be unloaded")
	}
	for userID := range m.occ.Occupants(worldID) {
		m.relocateNow(userID)
	}

	var firstErr error
	for _, name := range world.StorageNames(w.OwnerName, w.Name) {
		if err := m.regions.Unload(name); err != nil {
			m.log.Error("partition unload failed",
				zap.String("partition", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		m.log.Info("world unloaded", zap.String("world", worldID))
	}
	return firstErr
}

// Delete permanently removes a world: occupants evacuated, partitions wiped,
// record, invites, backups, and schedule cascaded. Validation and record
// mutation run on the coordinator lane; the directory wipes run on the
// background pool between them.
func (m *Manager) Delete(actor access.Subject, worldID string) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	go func() {
		_, err, _ := m.flight.Do("delete:"+worldID, func() (any, error) {
			inner := sched.NewFuture[struct{}]()
			m.lanes.Global(func() {
				m.beginDelete(actor, worldID, inner)
			})
			return inner.Await(context.Background())
		})
		f.Resolve(struct{}{}, err)
	}()
	return f
}

// beginDelete runs on the global lane.
func (m *Manager) beginDelete(actor access.Subject, worldID string, done *sched.Future[struct{}]) {
	w := m.store.World(worldID)
	if w == nil {
		done.Resolve(struct{}{}, fault.Missingf("world %s not found", worldID))
		return
	}
	if worldID == m.defaultID {
		done.Resolve(struct{}{}, fault.Validationf("the default world cannot be deleted"))
		return
	}
	if actor.ID != w.OwnerID {
		done.Resolve(struct{}{}, fault.Permissionf("only the owner may delete world %s", w.Name))
		return
	}

	if err := m.unload(worldID); err != nil {
		done.Resolve(struct{}{}, err)
		return
	}
	m.evict.Drop(worldID)

	names := world.StorageNames(w.OwnerName, w.Name)
	m.lanes.Background(func() {
		for _, name := range names {
			if err := m.regions.Delete(name); err != nil {
				done.Resolve(struct{}{}, err)
				return
			}
		}
		if m.backupCascade != nil {
			m.backupCascade(worldID)
		}
		m.lanes.Global(func() {
			done.Resolve(struct{}{}, m.finishDelete(context.Background(), actor, w))
		})
	})
}

// finishDelete runs on the global lane once the partition directories and
// archives are gone.
func (m *Manager) finishDelete(ctx context.Context, actor access.Subject, w *world.World) error {
	owner, err := m.store.User(ctx, w.OwnerID, w.OwnerName)
	if err == nil {
		delete(owner.OwnedWorlds, w.ID)
		if perr := m.store.PutUser(ctx, owner); perr != nil {
			m.log.Error("owner record update failed", zap.Error(perr))
		}
	}
	if err := m.store.DeleteWorld(ctx, w.ID); err != nil {
		return err
	}
	m.scripts.OnWorldDelete(w)
	m.log.Info("world deleted",
		zap.String("world", w.ID),
		zap.String("name", w.Name),
		zap.String("actor", actor.ID))
	return nil
}

// Teleport moves a user into a world, loading it if needed. The entry mode
// callback runs on the user's lane; the future resolves from there.
func (m *Manager) Teleport(user access.Subject, worldID string) *sched.Future[TeleportResult] {
	f := sched.NewFuture[TeleportResult]()
	m.lanes.Global(func() {
		role, err := m.access.Authorize(worldID, user.ID)
		if err != nil {
			f.Resolve(TeleportResult{}, err)
			return
		}
		w, err := m.load(worldID)
		if err != nil {
			f.Resolve(TeleportResult{}, err)
			return
		}

		partition := world.StorageName(w.OwnerName, w.Name, world.DimPrimary)
		mode := w.EntryMode
		if role.SpectatorOnly() {
			mode = world.EntrySpectator
		}
		source := m.occ.WorldOf(user.ID)

		var saved *world.PlayerState
		if rec, err := m.store.User(context.Background(), user.ID, user.Name); err == nil {
			if snap, ok := rec.SavedState[partition]; ok {
				saved = &snap
			}
		}

		m.lanes.User(user.ID, func() {
			m.occ.Enter(worldID, partition, user.ID)
			if source != "" && source != worldID {
				event.Emit(m.bus, event.OccupantChangedWorld{
					UserID:        user.ID,
					SourceWorldID: source,
					DestWorldID:   worldID,
					DestPartition: partition,
				})
			} else {
				event.Emit(m.bus, event.OccupantEntered{
					UserID:    user.ID,
					WorldID:   worldID,
					Partition: partition,
				})
			}
			f.Resolve(TeleportResult{
				World:     w,
				Partition: partition,
				Spawn:     w.Spawn,
				Mode:      mode,
				Role:      role,
				Saved:     saved,
			}, nil)
		})

		m.lanes.Background(func() {
			rec, err := m.store.User(context.Background(), user.ID, user.Name)
			if err != nil {
				return
			}
			rec.LastWorldID = worldID
			if err := m.store.PutUser(context.Background(), rec); err != nil {
				m.log.Warn("last world update failed", zap.Error(err))
			}
		})
	})
	return f
}

// HandleLeave records a session leaving the host: presence dropped, saved
// state captured if the session layer provided a snapshot.
func (m *Manager) HandleLeave(user access.Subject, state *world.PlayerState) {
	worldID := m.occ.WorldOf(user.ID)
	if worldID == "" {
		return
	}
	m.lanes.User(user.ID, func() {
		m.occ.Leave(user.ID)
		event.Emit(m.bus, event.OccupantLeft{
			UserID:  user.ID,
			WorldID: worldID,
		})
		if state == nil {
			return
		}
		m.lanes.Background(func() {
			rec, err := m.store.User(context.Background(), user.ID, user.Name)
			if err != nil {
				return
			}
			if rec.SavedState == nil {
				rec.SavedState = make(map[string]world.PlayerState)
			}
			rec.SavedState[state.Partition] = *state
			if err := m.store.PutUser(context.Background(), rec); err != nil {
				m.log.Warn("player state save failed", zap.Error(err))
			}
		})
	})
}

// Relocate moves a user back to the default world. Best effort: used when a
// user loses access to their current world or it goes away under them.
func (m *Manager) Relocate(userID string) {
	m.lanes.Global(func() {
		m.relocateNow(userID)
	})
}

// relocateNow runs on the global lane.
func (m *Manager) relocateNow(userID string) {
	source := m.occ.WorldOf(userID)
	if m.defaultID == "" || source == m.defaultID {
		m.occ.Leave(userID)
		if source != "" {
			event.Emit(m.bus, event.OccupantLeft{UserID: userID, WorldID: source})
		}
		return
	}
	home := m.store.World(m.defaultID)
	if home == nil {
		m.occ.Leave(userID)
		return
	}
	partition := world.StorageName(home.OwnerName, home.Name, world.DimPrimary)
	m.occ.Enter(m.defaultID, partition, userID)
	if source != "" {
		event.Emit(m.bus, event.OccupantChangedWorld{
			UserID:        userID,
			SourceWorldID: source,
			DestWorldID:   m.defaultID,
			DestPartition: partition,
		})
	} else {
		event.Emit(m.bus, event.OccupantEntered{
			UserID:    userID,
			WorldID:   m.defaultID,
			Partition: partition,
		})
	}
	m.log.Info("occupant relocated",
		zap.String("user", userID),
		zap.String("from", source),
		zap.String("to", m.defaultID))
}

// respawn answers a respawn request with the world spawn, falling back to
// the default world when the current one is gone.
func (m *Manager) respawn(userID, worldID string) {
	m.lanes.User(userID, func() {
		w := m.store.World(worldID)
		if w == nil || !w.Enabled {
			m.Relocate(userID)
			return
		}
		m.log.Debug("respawn resolved",
			zap.String("user", userID),
			zap.String("world", worldID),
			zap.Float64("x", w.Spawn.X),
			zap.Float64("y", w.Spawn.Y),
			zap.Float64("z", w.Spawn.Z))
	})
}

// Rename changes a world's display name and moves its partition directories.
// The world is unloaded for the move; occupants are evacuated first.
func (m *Manager) Rename(actor access.Subject, worldID, newName string) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	m.lanes.Global(func() {
		f.Resolve(struct{}{}, m.rename(context.Background(), actor, worldID, newName))
	})
	return f
}

func (m *Manager) rename(ctx context.Context, actor access.Subject, worldID, newName string) error {
	w := m.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may rename world %s", w.Name)
	}
	if err := world.ValidateName(newName, m.maxNameLen); err != nil {
		return err
	}
	if world.FoldName(newName) == world.FoldName(w.Name) {
		return fault.Validationf("world is already named %s", newName)
	}
	if m.store.WorldByName(w.OwnerID, newName) != nil {
		return fault.Validationf("you already have a world named %s", newName)
	}
	if err := m.unload(worldID); err != nil {
		return err
	}

	oldNames := world.StorageNames(w.OwnerName, w.Name)
	newNames := world.StorageNames(w.OwnerName, newName)
	for i := range oldNames {
		if err := m.regions.Rename(oldNames[i], newNames[i]); err != nil {
			return err
		}
	}
	oldName := w.Name
	w.Name = newName
	if err := m.store.PutWorld(ctx, w); err != nil {
		return err
	}
	m.log.Info("world renamed",
		zap.String("world", worldID),
		zap.String("from", oldName),
		zap.String("to", newName))
	return nil
}

// SetEnabled toggles a world. Disabling evacuates and unloads it; the record
// and its backups stay.
func (m *Manager) SetEnabled(actor access.Subject, worldID string, enabled bool) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	m.lanes.Global(func() {
		f.Resolve(struct{}{}, m.setEnabled(context.Background(), actor, worldID, enabled))
	})
	return f
}

func (m *Manager) setEnabled(ctx context.Context, actor access.Subject, worldID string, enabled bool) error {
	w := m.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if worldID == m.defaultID {
		return fault.Validationf("the default world cannot be disabled")
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may enable or disable world %s", w.Name)
	}
	if w.Enabled == enabled {
		return nil
	}
	if !enabled {
		if err := m.unload(worldID); err != nil {
			return err
		}
		m.evict.Drop(worldID)
	}
	w.Enabled = enabled
	if err := m.store.PutWorld(ctx, w); err != nil {
		return err
	}
	m.log.Info("world toggled",
		zap.String("world", worldID), zap.Bool("enabled", enabled))
	return nil
}

// PolicyUpdate carries the optional policy fields of ApplyPolicy. Nil fields
// are left unchanged.
type PolicyUpdate struct {
	TimeLock    *world.TimePolicy
	WeatherLock *world.WeatherPolicy
	EntryMode   *world.EntryMode
	Spawn       *world.Spawn
	Border      *world.Border
}

// ApplyPolicy updates a world's policy fields and re-applies them to any
// resident partitions. Owners and managers may change policy.
func (m *Manager) ApplyPolicy(actor access.Subject, worldID string, upd PolicyUpdate) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	m.lanes.Global(func() {
		f.Resolve(struct{}{}, m.applyPolicyUpdate(context.Background(), actor, worldID, upd))
	})
	return f
}

func (m *Manager) applyPolicyUpdate(ctx context.Context, actor access.Subject, worldID string, upd PolicyUpdate) error {
	w := m.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	role := w.RoleOf(actor.ID)
	if role != world.RoleOwner && role != world.RoleManager {
		return fault.Permissionf("%s cannot change policy of world %s", actor.Name, w.Name)
	}
	if upd.TimeLock != nil {
		w.TimeLock = *upd.TimeLock
	}
	if upd.WeatherLock != nil {
		w.WeatherLock = *upd.WeatherLock
	}
	if upd.EntryMode != nil {
		w.EntryMode = *upd.EntryMode
	}
	if upd.Spawn != nil {
		w.Spawn = *upd.Spawn
	}
	if upd.Border != nil {
		w.Border = *upd.Border
	}
	if err := m.store.PutWorld(ctx, w); err != nil {
		return err
	}
	m.applyPolicy(w)
	m.log.Info("policy updated", zap.String("world", worldID))
	return nil
}

// Stats returns a point-in-time view of one world.
func (m *Manager) Stats(worldID string) (Stats, error) {
	w := m.store.World(worldID)
	if w == nil {
		return Stats{}, fault.Missingf("world %s not found", worldID)
	}
	primary := world.StorageName(w.OwnerName, w.Name, world.DimPrimary)
	return Stats{
		World:     w,
		Occupants: m.occ.Count(worldID),
		Loaded:    m.regions.IsLoaded(primary),
		Backups:   len(m.store.Backups(worldID)),
	}, nil
}

// SweepEviction scans for idle loaded worlds on the coordinator lane.
func (m *Manager) SweepEviction() {
	m.lanes.Global(m.evict.sweep)
}

func (m *Manager) limitOf(u *world.UserRecord) int {
	if u.WorldLimit > 0 {
		return u.WorldLimit
	}
	return m.defaultLimit
}
