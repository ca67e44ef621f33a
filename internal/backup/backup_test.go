package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/access"
	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/region"
	"github.com/manyworlds/server/internal/sched"
	"github.com/manyworlds/server/internal/scripting"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

var (
	owner  = access.Subject{ID: "u1", Name: "Steve"}
	helper = access.Subject{ID: "u2", Name: "Alex"}
)

// stubLifecycle drops every resident partition, which is all a restore needs
// from the lifecycle manager.
type stubLifecycle struct {
	regions *region.Manager
}

func (s *stubLifecycle) Unload(worldID string) *sched.Future[struct{}] {
	for _, name := range s.regions.Loaded() {
		s.regions.Unload(name)
	}
	return sched.Resolved(struct{}{}, nil)
}

type fixture struct {
	svc     *Service
	store   *store.Store
	regions *region.Manager
	lanes   *sched.Lanes
	world   *world.World
}

func newFixture(t *testing.T, retention int) *fixture {
	t.Helper()
	return newScriptedFixture(t, retention, nil)
}

func newScriptedFixture(t *testing.T, retention int, scripts *scripting.Engine) *fixture {
	t.Helper()
	log := zap.NewNop()
	st := store.New(nil, log)
	lanes := sched.New(16, 2, log)
	t.Cleanup(lanes.Close)
	regions, err := region.NewManager(t.TempDir(), log)
	if err != nil {
		t.Fatalf("region manager: %v", err)
	}
	svc := NewService(st, regions, lanes, &stubLifecycle{regions: regions},
		scripts, t.TempDir(), retention, 10*time.Millisecond, log)

	w := &world.World{
		ID:        "w1",
		Name:      "Base",
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
		CreatedAt: time.Now(),
		Enabled:   true,
		Members:   map[string]world.Role{helper.ID: world.RoleMember},
	}
	if err := st.PutWorld(context.Background(), w); err != nil {
		t.Fatalf("PutWorld() = %v", err)
	}
	meta := region.LevelMeta{WorldID: w.ID, GenType: world.GenDefault, Seed: 7}
	for _, name := range world.StorageNames(w.OwnerName, w.Name) {
		if err := regions.Create(name, meta); err != nil {
			t.Fatalf("Create(%s) = %v", name, err)
		}
	}
	return &fixture{svc: svc, store: st, regions: regions, lanes: lanes, world: w}
}

func (f *fixture) backup(t *testing.T) *world.Backup {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := f.svc.Create(owner, f.world.ID, "manual").Await(ctx)
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	return b
}

func await[T any](t *testing.T, f *sched.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestCreateWritesArchive(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)

	info, err := os.Stat(b.Path)
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if info.Size() != b.SizeBytes || b.SizeBytes == 0 {
		t.Fatalf("size = %d, record says %d", info.Size(), b.SizeBytes)
	}
	got, err := digestFile(b.Path)
	if err != nil {
		t.Fatalf("digestFile() = %v", err)
	}
	if got != b.Digest {
		t.Fatalf("digest = %s, record says %s", got, b.Digest)
	}
	if len(f.svc.List(f.world.ID)) != 1 {
		t.Fatalf("List() len = %d, want 1", len(f.svc.List(f.world.ID)))
	}
}

func TestCreateRequiresOwnerOrManager(t *testing.T) {
	f := newFixture(t, 10)

	_, err := await(t, f.svc.Create(helper, f.world.ID, "sneaky"))
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("Create(member) = %v, want permission fault", err)
	}

	f.world.Members[helper.ID] = world.RoleManager
	if _, err := await(t, f.svc.Create(helper, f.world.ID, "ok")); err != nil {
		t.Fatalf("Create(manager) = %v", err)
	}
}

func TestCreateMissingWorld(t *testing.T) {
	f := newFixture(t, 10)
	_, err := await(t, f.svc.Create(owner, "nope", ""))
	if !errors.Is(err, fault.ErrMissing) {
		t.Fatalf("Create(missing world) = %v, want missing fault", err)
	}
}

func TestRetentionPrunesOldestFirst(t *testing.T) {
	f := newFixture(t, 2)
	first := f.backup(t)
	f.backup(t)
	f.backup(t)

	list := f.svc.List(f.world.ID)
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	for _, b := range list {
		if b.ID == first.ID {
			t.Fatalf("oldest backup survived the retention cap")
		}
	}
	if _, err := os.Stat(first.Path); !os.IsNotExist(err) {
		t.Fatalf("pruned archive still on disk")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, 10)
	chunk := filepath.Join(f.regions.Dir("steve_base"), "chunk.dat")
	if err := os.WriteFile(chunk, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	b := f.backup(t)

	os.WriteFile(chunk, []byte("v2"), 0o644)
	if _, err := await(t, f.svc.Restore(owner, b.ID)); err != nil {
		t.Fatalf("Restore() = %v", err)
	}
	got, err := os.ReadFile(chunk)
	if err != nil {
		t.Fatalf("read after restore: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("chunk after restore = %q, want v1", got)
	}
}

func TestRestoreRequiresOwner(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)

	_, err := await(t, f.svc.Restore(helper, b.ID))
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("Restore(member) = %v, want permission fault", err)
	}
}

func TestRestoreDetectsCorruptArchive(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)

	fh, err := os.OpenFile(b.Path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	fh.Write([]byte("tampered"))
	fh.Close()

	_, err = await(t, f.svc.Restore(owner, b.ID))
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("Restore(corrupt) = %v, want validation fault", err)
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	f := newFixture(t, 10)
	_, err := await(t, f.svc.Restore(owner, "nope"))
	if !errors.Is(err, fault.ErrMissing) {
		t.Fatalf("Restore(missing) = %v, want missing fault", err)
	}
}

func TestDeleteRemovesArchiveAndRecord(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)

	if err := f.svc.Delete(context.Background(), owner, b.ID); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := os.Stat(b.Path); !os.IsNotExist(err) {
		t.Fatalf("archive still on disk")
	}
	if len(f.svc.List(f.world.ID)) != 0 {
		t.Fatalf("record survived delete")
	}
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)
	os.Remove(b.Path)

	if err := f.svc.Delete(context.Background(), owner, b.ID); err != nil {
		t.Fatalf("Delete(no file) = %v", err)
	}
}

func TestCreateNotifiesBackupHook(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "seen.txt")
	scriptsDir := t.TempDir()
	script := fmt.Sprintf(`function on_backup_done(b)
  local f = io.open(%q, "w")
  f:write(b.backup_id)
  f:close()
end`, marker)
	if err := os.WriteFile(filepath.Join(scriptsDir, "hooks.lua"), []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	engine, err := scripting.NewEngine(scriptsDir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() = %v", err)
	}
	t.Cleanup(engine.Close)

	f := newScriptedFixture(t, 10, engine)
	b := f.backup(t)

	// The notification trails the future on the coordinator lane.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := os.ReadFile(marker)
		if err == nil && string(got) == b.ID {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("on_backup_done hook never saw backup %s", b.ID)
}

func TestCascadeDeleteWipesWorldDir(t *testing.T) {
	f := newFixture(t, 10)
	b := f.backup(t)

	f.svc.CascadeDelete(f.world.ID)
	if _, err := os.Stat(filepath.Dir(b.Path)); !os.IsNotExist(err) {
		t.Fatalf("world archive dir still on disk")
	}
}
