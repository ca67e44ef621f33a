// Package backup snapshots world partitions into compressed archives and
// restores them. Archive I/O runs on the background pool; at most one backup
// or restore is in flight per world.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/manyworlds/server/internal/access"
	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/region"
	"github.com/manyworlds/server/internal/sched"
	"github.com/manyworlds/server/internal/scripting"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

// Lifecycle is the slice of the lifecycle manager the backup service needs:
// restore evacuates and unloads the target world first.
type Lifecycle interface {
	Unload(worldID string) *sched.Future[struct{}]
}

// Service is the backup subsystem.
type Service struct {
	store   *store.Store
	regions *region.Manager
	lanes   *sched.Lanes
	life    Lifecycle
	scripts *scripting.Engine
	log     *zap.Logger

	dir          string
	retention    int
	restoreGrace time.Duration

	flight singleflight.Group
}

func NewService(st *store.Store, regions *region.Manager, lanes *sched.Lanes,
	life Lifecycle, scripts *scripting.Engine, dir string, retention int,
	restoreGrace time.Duration, log *zap.Logger) *Service {
	if retention <= 0 {
		retention = 10
	}
	return &Service{
		store:        st,
		regions:      regions,
		lanes:        lanes,
		life:         life,
		scripts:      scripts,
		log:          log,
		dir:          dir,
		retention:    retention,
		restoreGrace: restoreGrace,
	}
}

func (s *Service) archivePath(worldID, backupID string) string {
	return filepath.Join(s.dir, worldID, backupID+".tar.zst")
}

// Create snapshots a world. The retention cap is enforced before the new
// archive is written: the oldest snapshots are deleted until there is room,
// so a full quota never blocks a fresh backup.
func (s *Service) Create(actor access.Subject, worldID, description string) *sched.Future[*world.Backup] {
	return s.create(actor, worldID, description, false)
}

// CreateAutomatic is the schedule runner's entry point; it bypasses the
// permission check.
func (s *Service) CreateAutomatic(worldID string) *sched.Future[*world.Backup] {
	return s.create(access.Subject{}, worldID, "scheduled", true)
}

func (s *Service) create(actor access.Subject, worldID, description string, automatic bool) *sched.Future[*world.Backup] {
	f := sched.NewFuture[*world.Backup]()
	go func() {
		v, err, _ := s.flight.Do("backup:"+worldID, func() (any, error) {
			inner := sched.NewFuture[*world.Backup]()
			s.lanes.Background(func() {
				inner.Resolve(s.doCreate(context.Background(), actor, worldID, description, automatic))
			})
			return inner.Await(context.Background())
		})
		b, _ := v.(*world.Backup)
		f.Resolve(b, err)
	}()
	return f
}

func (s *Service) doCreate(ctx context.Context, actor access.Subject, worldID, description string, automatic bool) (*world.Backup, error) {
	w := s.store.World(worldID)
	if w == nil {
		return nil, fault.Missingf("world %s not found", worldID)
	}
	if !automatic {
		role := w.RoleOf(actor.ID)
		if role != world.RoleOwner && role != world.RoleManager {
			return nil, fault.Permissionf("%s cannot back up world %s", actor.Name, w.Name)
		}
	}

	// Make room first so the cap holds even if this process dies right
	// after the new archive lands.
	existing := s.store.Backups(worldID)
	for len(existing) >= s.retention {
		oldest := existing[0]
		if err := s.remove(ctx, oldest); err != nil {
			return nil, err
		}
		existing = existing[1:]
		s.log.Info("retention pruned backup",
			zap.String("world", worldID), zap.String("backup", oldest.ID))
	}

	// Flush resident partitions in parallel so the archive sees settled state.
	var flush errgroup.Group
	var dirs []string
	for _, name := range world.StorageNames(w.OwnerName, w.Name) {
		if !s.regions.Exists(name) {
			continue
		}
		dirs = append(dirs, s.regions.Dir(name))
		if s.regions.IsLoaded(name) {
			partition := name
			flush.Go(func() error { return s.regions.Flush(partition) })
		}
	}
	if err := flush.Wait(); err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fault.Missingf("world %s has no partitions on disk", w.Name)
	}

	b := &world.Backup{
		ID:          world.NewID(),
		WorldID:     w.ID,
		WorldName:   w.Name,
		OwnerID:     w.OwnerID,
		OwnerName:   w.OwnerName,
		CreatedAt:   time.Now(),
		Description: description,
		Automatic:   automatic,
	}
	b.Path = s.archivePath(w.ID, b.ID)
	size, digest, err := writeArchive(dirs, b.Path)
	if err != nil {
		return nil, err
	}
	b.SizeBytes = size
	b.Digest = digest

	if err := s.store.PutBackup(ctx, b); err != nil {
		os.Remove(b.Path)
		return nil, err
	}
	// The Lua VM is owned by the coordinator lane; never call it from the
	// background pool.
	s.lanes.Global(func() { s.scripts.OnBackupDone(b) })
	s.log.Info("backup created",
		zap.String("world", w.ID),
		zap.String("backup", b.ID),
		zap.Int64("size", size),
		zap.Bool("automatic", automatic))
	return b, nil
}

// Restore replaces a world's partitions with a snapshot's contents. The
// world is evacuated and unloaded first; after the settle delay each
// partition is extracted to a staging path and swapped in whole, so a
// failure mid-restore leaves the live directories untouched.
func (s *Service) Restore(actor access.Subject, backupID string) *sched.Future[struct{}] {
	f := sched.NewFuture[struct{}]()
	go func() {
		b := s.store.Backup(backupID)
		if b == nil {
			f.Resolve(struct{}{}, fault.Missingf("backup %s not found", backupID))
			return
		}
		_, err, _ := s.flight.Do("backup:"+b.WorldID, func() (any, error) {
			inner := sched.NewFuture[struct{}]()
			s.lanes.Background(func() {
				s.beginRestore(actor, b, inner)
			})
			return inner.Await(context.Background())
		})
		f.Resolve(struct{}{}, err)
	}()
	return f
}

// beginRestore validates the snapshot and evacuates the world, then hands
// off to finishRestore through a scheduled re-entry. No pool worker sleeps
// through the settle delay.
func (s *Service) beginRestore(actor access.Subject, b *world.Backup, done *sched.Future[struct{}]) {
	w := s.store.World(b.WorldID)
	if w == nil {
		done.Resolve(struct{}{}, fault.Missingf("world %s no longer exists", b.WorldID))
		return
	}
	if actor.ID != w.OwnerID {
		done.Resolve(struct{}{}, fault.Permissionf("only the owner may restore world %s", w.Name))
		return
	}

	if got, err := digestFile(b.Path); err != nil {
		done.Resolve(struct{}{}, err)
		return
	} else if b.Digest != "" && got != b.Digest {
		done.Resolve(struct{}{}, fault.Validationf("archive for backup %s is corrupt", b.ID))
		return
	}

	if _, err := s.life.Unload(b.WorldID).Await(context.Background()); err != nil {
		done.Resolve(struct{}{}, err)
		return
	}
	// Let in-flight partition writes settle before touching directories.
	s.lanes.BackgroundAfter(s.restoreGrace, func() {
		done.Resolve(struct{}{}, s.finishRestore(actor, b))
	})
}

func (s *Service) finishRestore(actor access.Subject, b *world.Backup) error {
	staging := filepath.Join(s.dir, b.WorldID, b.ID+".restore")
	if err := os.RemoveAll(staging); err != nil {
		return fault.IOWrap(err, "clear staging dir")
	}
	if err := extractArchive(b.Path, staging); err != nil {
		os.RemoveAll(staging)
		return err
	}
	defer os.RemoveAll(staging)

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fault.IOWrap(err, "read staging dir")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := s.regions.Swap(entry.Name(), filepath.Join(staging, entry.Name())); err != nil {
			return err
		}
	}
	s.log.Info("backup restored",
		zap.String("world", b.WorldID),
		zap.String("backup", b.ID),
		zap.String("actor", actor.ID))
	return nil
}

// Delete removes one snapshot. A missing archive file is tolerated so the
// record can always be cleaned up.
func (s *Service) Delete(ctx context.Context, actor access.Subject, backupID string) error {
	b := s.store.Backup(backupID)
	if b == nil {
		return fault.Missingf("backup %s not found", backupID)
	}
	w := s.store.World(b.WorldID)
	if w != nil {
		role := w.RoleOf(actor.ID)
		if role != world.RoleOwner && role != world.RoleManager {
			return fault.Permissionf("%s cannot delete backups of world %s", actor.Name, w.Name)
		}
	}
	if err := s.remove(ctx, b); err != nil {
		return err
	}
	s.log.Info("backup deleted",
		zap.String("world", b.WorldID), zap.String("backup", b.ID))
	return nil
}

func (s *Service) remove(ctx context.Context, b *world.Backup) error {
	if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
		return fault.IOWrap(err, "remove archive %s", b.ID)
	}
	return s.store.DeleteBackup(ctx, b)
}

// CascadeDelete wipes every archive of a deleted world. Records are already
// cascaded by the entity store; this only clears the files.
func (s *Service) CascadeDelete(worldID string) {
	dir := filepath.Join(s.dir, worldID)
	if err := os.RemoveAll(dir); err != nil {
		s.log.Error("backup cascade failed",
			zap.String("world", worldID), zap.Error(err))
		return
	}
	s.log.Info("backup archives removed", zap.String("world", worldID))
}

// List returns a world's snapshots, oldest first.
func (s *Service) List(worldID string) []*world.Backup {
	return s.store.Backups(worldID)
}
