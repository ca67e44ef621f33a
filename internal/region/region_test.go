package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/world"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() = %v", err)
	}
	return m
}

func testMeta(worldID string) LevelMeta {
	return LevelMeta{WorldID: worldID, GenType: world.GenDefault, Seed: 42}
}

func TestCreateWritesLevelMetadata(t *testing.T) {
	m := newTestManager(t)
	if err := m.Create("steve_base", testMeta("w1")); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if !m.Exists("steve_base") {
		t.Fatalf("Exists() = false after create")
	}
	if _, err := os.Stat(filepath.Join(m.Dir("steve_base"), levelFile)); err != nil {
		t.Fatalf("level file missing: %v", err)
	}
}

func TestCreateRejectsExistingDir(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))
	err := m.Create("steve_base", testMeta("w1"))
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("second Create() = %v, want validation fault", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))

	p1, err := m.Load("steve_base")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if p1.WorldID != "w1" {
		t.Fatalf("Load() world = %q, want w1", p1.WorldID)
	}
	p2, err := m.Load("steve_base")
	if err != nil {
		t.Fatalf("second Load() = %v", err)
	}
	if p1 != p2 {
		t.Fatalf("Load() returned a new handle for a resident partition")
	}
	if !m.IsLoaded("steve_base") {
		t.Fatalf("IsLoaded() = false")
	}
}

func TestLoadMissingPartition(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Load("nobody_nothing")
	if !errors.Is(err, fault.ErrMissing) {
		t.Fatalf("Load(missing) = %v, want missing fault", err)
	}
}

func TestUnloadFlushesAndDrops(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))
	p, _ := m.Load("steve_base")
	p.MarkDirty()

	if err := m.Unload("steve_base"); err != nil {
		t.Fatalf("Unload() = %v", err)
	}
	if m.IsLoaded("steve_base") {
		t.Fatalf("IsLoaded() = true after unload")
	}
	// Unloading again is a no-op.
	if err := m.Unload("steve_base"); err != nil {
		t.Fatalf("second Unload() = %v", err)
	}
}

func TestDeleteRefusesResidentPartition(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))
	m.Load("steve_base")

	err := m.Delete("steve_base")
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("Delete(resident) = %v, want validation fault", err)
	}
	m.Unload("steve_base")
	if err := m.Delete("steve_base"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if m.Exists("steve_base") {
		t.Fatalf("Exists() = true after delete")
	}
	// Deleting a missing partition converges.
	if err := m.Delete("steve_base"); err != nil {
		t.Fatalf("second Delete() = %v", err)
	}
}

func TestRenameMovesDirectory(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))

	if err := m.Rename("steve_base", "steve_fort"); err != nil {
		t.Fatalf("Rename() = %v", err)
	}
	if m.Exists("steve_base") || !m.Exists("steve_fort") {
		t.Fatalf("rename left wrong directories")
	}
	// Renaming an absent source is a no-op (legacy aux partitions).
	if err := m.Rename("steve_base_nether", "steve_fort_nether"); err != nil {
		t.Fatalf("Rename(absent) = %v", err)
	}
}

func TestSwapReplacesContentWhole(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))
	live := filepath.Join(m.Dir("steve_base"), "chunk.dat")
	os.WriteFile(live, []byte("current"), 0o644)

	staged := filepath.Join(t.TempDir(), "steve_base")
	os.MkdirAll(staged, 0o755)
	os.WriteFile(filepath.Join(staged, "chunk.dat"), []byte("restored"), 0o644)

	if err := m.Swap("steve_base", staged); err != nil {
		t.Fatalf("Swap() = %v", err)
	}
	got, err := os.ReadFile(live)
	if err != nil {
		t.Fatalf("read after swap: %v", err)
	}
	if string(got) != "restored" {
		t.Fatalf("content after swap = %q, want restored", got)
	}
	if _, err := os.Stat(m.Dir("steve_base") + ".old"); !os.IsNotExist(err) {
		t.Fatalf("stale .old directory left behind")
	}
}

func TestSwapRefusesResidentPartition(t *testing.T) {
	m := newTestManager(t)
	m.Create("steve_base", testMeta("w1"))
	m.Load("steve_base")

	err := m.Swap("steve_base", t.TempDir())
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("Swap(resident) = %v, want validation fault", err)
	}
}
