// Package store is the entity store: an in-memory cache of world, user,
// invite, backup, and schedule records over a persistence backend. Writes
// land in the cache before the backing write is issued; readers on other
// worlds see eventual rather than fully serialized consistency.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/world"
	"go.uber.org/zap"
)

// Backend is the persistence surface the store reads through and writes
// back to. A nil Backend gives a memory-only store (tests, throwaway hosts).
type Backend interface {
	LoadWorlds(ctx context.Context) ([]*world.World, error)
	PutWorld(ctx context.Context, w *world.World) error
	DeleteWorld(ctx context.Context, worldID string) error
	TransferOwnership(ctx context.Context, w *world.World, oldOwnerID string, oldOwned, newOwned []string) error

	GetUser(ctx context.Context, userID string) (*world.UserRecord, error)
	PutUser(ctx context.Context, u *world.UserRecord) error

	LoadInvites(ctx context.Context) ([]*world.Invite, error)
	PutInvite(ctx context.Context, inv *world.Invite) error
	DeleteInvite(ctx context.Context, worldID, inviteeID string) error
	DeleteWorldInvites(ctx context.Context, worldID string) error

	LoadBackups(ctx context.Context) ([]*world.Backup, error)
	PutBackup(ctx context.Context, b *world.Backup) error
	DeleteBackup(ctx context.Context, backupID string) error
	DeleteWorldBackups(ctx context.Context, worldID string) error

	LoadSchedules(ctx context.Context) ([]*world.BackupSchedule, error)
	PutSchedule(ctx context.Context, s *world.BackupSchedule) error
	DeleteSchedule(ctx context.Context, worldID string) error
}

type Store struct {
	backend Backend
	log     *zap.Logger

	mu        sync.RWMutex
	worlds    map[string]*world.World
	nameIndex map[string]string // partition storage name → world id
	users     map[string]*world.UserRecord
	invites   map[string]map[string]*world.Invite // worldID → inviteeID → invite
	backups   map[string][]*world.Backup          // worldID → oldest-first
	schedules map[string]*world.BackupSchedule
}

func New(backend Backend, log *zap.Logger) *Store {
	return &Store{
		backend:   backend,
		log:       log,
		worlds:    make(map[string]*world.World),
		nameIndex: make(map[string]string),
		users:     make(map[string]*world.UserRecord),
		invites:   make(map[string]map[string]*world.Invite),
		backups:   make(map[string][]*world.Backup),
		schedules: make(map[string]*world.BackupSchedule),
	}
}

// Warm loads all records from the backend and builds the storage-name
// index. Called once at boot, before any lane starts.
func (s *Store) Warm(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	worlds, err := s.backend.LoadWorlds(ctx)
	if err != nil {
		return err
	}
	invites, err := s.backend.LoadInvites(ctx)
	if err != nil {
		return err
	}
	backups, err := s.backend.LoadBackups(ctx)
	if err != nil {
		return err
	}
	schedules, err := s.backend.LoadSchedules(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range worlds {
		s.worlds[w.ID] = w
		s.indexLocked(w)
	}
	for _, inv := range invites {
		byInvitee := s.invites[inv.WorldID]
		if byInvitee == nil {
			byInvitee = make(map[string]*world.Invite)
			s.invites[inv.WorldID] = byInvitee
		}
		byInvitee[inv.InviteeID] = inv
	}
	for _, b := range backups {
		s.backups[b.WorldID] = append(s.backups[b.WorldID], b)
	}
	for _, sc := range schedules {
		s.schedules[sc.WorldID] = sc
	}
	s.log.Info("entity store warmed",
		zap.Int("worlds", len(s.worlds)),
		zap.Int("backups", len(backups)),
		zap.Int("schedules", len(s.schedules)))
	return nil
}

// --- Worlds ---

// World returns a world by id, or nil.
func (s *Store) World(worldID string) *world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worlds[worldID]
}

// WorldByName resolves an owner's world by display name, case-insensitive.
func (s *Store) WorldByName(ownerID, name string) *world.World {
	key := world.FoldName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.worlds {
		if w.OwnerID == ownerID && world.FoldName(w.Name) == key {
			return w
		}
	}
	return nil
}

// WorldByStorageName resolves a partition storage name to its world via the
// secondary index, kept in sync on create, rename, and delete.
func (s *Store) WorldByStorageName(storageName string) *world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nameIndex[storageName]
	if !ok {
		return nil
	}
	return s.worlds[id]
}

// AllWorlds returns a snapshot of every world record.
func (s *Store) AllWorlds() []*world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*world.World, 0, len(s.worlds))
	for _, w := range s.worlds {
		out = append(out, w)
	}
	return out
}

// WorldsByOwner returns the worlds owned by one user.
func (s *Store) WorldsByOwner(ownerID string) []*world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*world.World
	for _, w := range s.worlds {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PutWorld caches a world and writes it back, refreshing the name index.
func (s *Store) PutWorld(ctx context.Context, w *world.World) error {
	s.mu.Lock()
	s.worlds[w.ID] = w
	s.reindexLocked(w)
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PutWorld(ctx, w)
}

// DeleteWorld drops a world record plus its cached invites, backups, and
// schedule, then cascades the same deletes to the backend.
func (s *Store) DeleteWorld(ctx context.Context, worldID string) error {
	s.mu.Lock()
	w := s.worlds[worldID]
	if w != nil {
		s.unindexLocked(worldID)
		delete(s.worlds, worldID)
	}
	delete(s.invites, worldID)
	delete(s.backups, worldID)
	delete(s.schedules, worldID)
	s.mu.Unlock()
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if s.backend == nil {
		return nil
	}
	if err := s.backend.DeleteWorldInvites(ctx, worldID); err != nil {
		return err
	}
	if err := s.backend.DeleteWorldBackups(ctx, worldID); err != nil {
		return err
	}
	if err := s.backend.DeleteSchedule(ctx, worldID); err != nil {
		return err
	}
	return s.backend.DeleteWorld(ctx, worldID)
}

// TransferOwnership updates the cache and persists the world plus both
// users' owned-world sets atomically.
func (s *Store) TransferOwnership(ctx context.Context, w *world.World, oldOwner, newOwner *world.UserRecord) error {
	s.mu.Lock()
	s.worlds[w.ID] = w
	s.reindexLocked(w)
	s.users[oldOwner.ID] = oldOwner
	s.users[newOwner.ID] = newOwner
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.TransferOwnership(ctx, w, oldOwner.ID,
		ownedList(oldOwner), ownedList(newOwner))
}

func ownedList(u *world.UserRecord) []string {
	out := make([]string, 0, len(u.OwnedWorlds))
	for id := range u.OwnedWorlds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// indexLocked adds a world's partition storage names to the index.
func (s *Store) indexLocked(w *world.World) {
	for _, name := range world.StorageNames(w.OwnerName, w.Name) {
		s.nameIndex[name] = w.ID
	}
}

// reindexLocked drops stale entries for the world id and re-adds current
// names. Rename and ownership transfer both change the derivation inputs.
func (s *Store) reindexLocked(w *world.World) {
	s.unindexLocked(w.ID)
	s.indexLocked(w)
}

func (s *Store) unindexLocked(worldID string) {
	for name, id := range s.nameIndex {
		if id == worldID {
			delete(s.nameIndex, name)
		}
	}
}

// --- Users ---

// User reads a user record through the cache, creating a fresh record for
// first-seen users.
func (s *Store) User(ctx context.Context, userID, userName string) (*world.UserRecord, error) {
	s.mu.RLock()
	u := s.users[userID]
	s.mu.RUnlock()
	if u != nil {
		return u, nil
	}
	if s.backend != nil {
		loaded, err := s.backend.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		u = loaded
	}
	if u == nil {
		u = &world.UserRecord{
			ID:          userID,
			Name:        userName,
			OwnedWorlds: make(map[string]struct{}),
			SavedState:  make(map[string]world.PlayerState),
		}
	}
	s.mu.Lock()
	s.users[userID] = u
	s.mu.Unlock()
	return u, nil
}

// PutUser caches a user record and writes it back.
func (s *Store) PutUser(ctx context.Context, u *world.UserRecord) error {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PutUser(ctx, u)
}

// --- Invites ---

// Invite returns the pending invite for (world, invitee), or nil.
func (s *Store) Invite(worldID, inviteeID string) *world.Invite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invites[worldID][inviteeID]
}

// InvitesFor lists every pending invite addressed to one user.
func (s *Store) InvitesFor(inviteeID string) []*world.Invite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*world.Invite
	for _, byInvitee := range s.invites {
		if inv, ok := byInvitee[inviteeID]; ok {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// PutInvite caches an invite and writes it back.
func (s *Store) PutInvite(ctx context.Context, inv *world.Invite) error {
	s.mu.Lock()
	byInvitee := s.invites[inv.WorldID]
	if byInvitee == nil {
		byInvitee = make(map[string]*world.Invite)
		s.invites[inv.WorldID] = byInvitee
	}
	byInvitee[inv.InviteeID] = inv
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PutInvite(ctx, inv)
}

// DeleteInvite removes a pending invite. Returns Missing if none exists:
// accept, deny, and cancel are terminal, a consumed invite cannot be reused.
func (s *Store) DeleteInvite(ctx context.Context, worldID, inviteeID string) error {
	s.mu.Lock()
	byInvitee := s.invites[worldID]
	_, ok := byInvitee[inviteeID]
	if ok {
		delete(byInvitee, inviteeID)
		if len(byInvitee) == 0 {
			delete(s.invites, worldID)
		}
	}
	s.mu.Unlock()
	if !ok {
		return fault.Missingf("invite for %s to world %s not found", inviteeID, worldID)
	}
	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteInvite(ctx, worldID, inviteeID)
}

// --- Backups ---

// Backups returns a world's backup records, oldest first.
func (s *Store) Backups(worldID string) []*world.Backup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.backups[worldID]
	out := make([]*world.Backup, len(list))
	copy(out, list)
	return out
}

// Backup finds a backup record by id.
func (s *Store) Backup(backupID string) *world.Backup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.backups {
		for _, b := range list {
			if b.ID == backupID {
				return b
			}
		}
	}
	return nil
}

// PutBackup caches a backup record (kept oldest-first) and writes it back.
func (s *Store) PutBackup(ctx context.Context, b *world.Backup) error {
	s.mu.Lock()
	list := append(s.backups[b.WorldID], b)
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.backups[b.WorldID] = list
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PutBackup(ctx, b)
}

// DeleteBackup removes a backup record.
func (s *Store) DeleteBackup(ctx context.Context, b *world.Backup) error {
	s.mu.Lock()
	list := s.backups[b.WorldID]
	for i, cand := range list {
		if cand.ID == b.ID {
			s.backups[b.WorldID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.backups[b.WorldID]) == 0 {
		delete(s.backups, b.WorldID)
	}
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteBackup(ctx, b.ID)
}

// --- Schedules ---

// Schedule returns a world's backup schedule, or nil.
func (s *Store) Schedule(worldID string) *world.BackupSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedules[worldID]
}

// Schedules returns a snapshot of every schedule.
func (s *Store) Schedules() []*world.BackupSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*world.BackupSchedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc)
	}
	return out
}

// PutSchedule caches a schedule and writes it back.
func (s *Store) PutSchedule(ctx context.Context, sc *world.BackupSchedule) error {
	s.mu.Lock()
	s.schedules[sc.WorldID] = sc
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.PutSchedule(ctx, sc)
}

// DeleteSchedule removes a world's schedule. Missing schedules are a no-op.
func (s *Store) DeleteSchedule(ctx context.Context, worldID string) error {
	s.mu.Lock()
	delete(s.schedules, worldID)
	s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteSchedule(ctx, worldID)
}
