// Package region manages the on-disk partition directories that hold world
// terrain and entity data. Every world owns one directory per dimension,
// named by the derived storage name. The region manager tracks which
// partitions are resident and flushes their state on unload.
package region

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/world"
	"go.uber.org/zap"
)

const levelFile = "level.json"

// LevelMeta is the per-partition metadata written at generation time.
type LevelMeta struct {
	WorldID   string        `json:"world_id"`
	GenType   world.GenType `json:"gen_type"`
	Seed      int64         `json:"seed"`
	CreatedAt time.Time     `json:"created_at"`
}

// Partition is a resident on-disk partition.
type Partition struct {
	StorageName string
	WorldID     string
	Dir         string
	LoadedAt    time.Time

	mu    sync.Mutex
	dirty bool
}

// MarkDirty records that the partition has unflushed changes.
func (p *Partition) MarkDirty() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Manager owns the data directory. Loads and unloads are expected to run on
// the global coordinator lane; the internal lock only guards the resident
// set against readers on other lanes.
type Manager struct {
	dataDir string
	log     *zap.Logger

	mu     sync.RWMutex
	loaded map[string]*Partition
}

func NewManager(dataDir string, log *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fault.IOWrap(err, "create data dir")
	}
	return &Manager{
		dataDir: dataDir,
		log:     log,
		loaded:  make(map[string]*Partition),
	}, nil
}

// Dir returns the on-disk path for a partition storage name, whether or not
// the partition exists.
func (m *Manager) Dir(storageName string) string {
	return filepath.Join(m.dataDir, storageName)
}

// Exists reports whether a partition directory is present on disk.
func (m *Manager) Exists(storageName string) bool {
	info, err := os.Stat(m.Dir(storageName))
	return err == nil && info.IsDir()
}

// IsLoaded reports whether a partition is resident.
func (m *Manager) IsLoaded(storageName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.loaded[storageName]
	return ok
}

// Loaded returns the storage names of all resident partitions.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		out = append(out, name)
	}
	return out
}

// Create generates a new partition directory and writes its level metadata.
// Fails if the directory already exists: storage names are unique per
// (owner, world) and a collision means a stale directory was left behind.
func (m *Manager) Create(storageName string, meta LevelMeta) error {
	dir := m.Dir(storageName)
	if _, err := os.Stat(dir); err == nil {
		return fault.Validationf("partition %s already exists on disk", storageName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.IOWrap(err, "create partition %s", storageName)
	}
	if err := writeJSON(filepath.Join(dir, levelFile), meta); err != nil {
		os.RemoveAll(dir)
		return err
	}
	m.log.Info("partition created",
		zap.String("partition", storageName),
		zap.String("world", meta.WorldID),
		zap.String("gen", string(meta.GenType)),
		zap.Int64("seed", meta.Seed))
	return nil
}

// Load makes a partition resident. Loading a resident partition returns the
// existing handle; lifecycle retries hit this path.
func (m *Manager) Load(storageName string) (*Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.loaded[storageName]; ok {
		return p, nil
	}

	dir := m.Dir(storageName)
	meta, err := readLevel(dir)
	if err != nil {
		return nil, err
	}
	p := &Partition{
		StorageName: storageName,
		WorldID:     meta.WorldID,
		Dir:         dir,
		LoadedAt:    time.Now(),
	}
	m.loaded[storageName] = p
	m.log.Info("partition loaded", zap.String("partition", storageName))
	return p, nil
}

// Unload flushes a partition and drops it from the resident set. Unloading
// a partition that is not resident is a no-op.
func (m *Manager) Unload(storageName string) error {
	m.mu.Lock()
	p, ok := m.loaded[storageName]
	if ok {
		delete(m.loaded, storageName)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := m.flush(p); err != nil {
		return err
	}
	m.log.Info("partition unloaded", zap.String("partition", storageName))
	return nil
}

// Flush writes a resident partition's state without unloading it.
func (m *Manager) Flush(storageName string) error {
	m.mu.RLock()
	p := m.loaded[storageName]
	m.mu.RUnlock()
	if p == nil {
		return nil
	}
	return m.flush(p)
}

func (m *Manager) flush(p *Partition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}
	// Touch the level file so its mtime reflects the last flush. Terrain
	// chunk data is appended in place by the simulation layer.
	meta, err := readLevel(p.Dir)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(p.Dir, levelFile), meta); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

// Delete removes a partition directory from disk. The partition must not be
// resident. A missing directory is a no-op so deletion retries converge.
func (m *Manager) Delete(storageName string) error {
	m.mu.RLock()
	_, resident := m.loaded[storageName]
	m.mu.RUnlock()
	if resident {
		return fault.Validationf("partition %s is loaded", storageName)
	}
	if err := os.RemoveAll(m.Dir(storageName)); err != nil {
		return fault.IOWrap(err, "delete partition %s", storageName)
	}
	m.log.Info("partition deleted", zap.String("partition", storageName))
	return nil
}

// Rename moves a partition directory to a new storage name. The partition
// must not be resident. Missing source directories are skipped: legacy
// worlds may never have generated a nether or end partition.
func (m *Manager) Rename(oldName, newName string) error {
	m.mu.RLock()
	_, resident := m.loaded[oldName]
	m.mu.RUnlock()
	if resident {
		return fault.Validationf("partition %s is loaded", oldName)
	}
	oldDir := m.Dir(oldName)
	if _, err := os.Stat(oldDir); os.IsNotExist(err) {
		return nil
	}
	newDir := m.Dir(newName)
	if _, err := os.Stat(newDir); err == nil {
		return fault.Validationf("partition %s already exists on disk", newName)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return fault.IOWrap(err, "rename partition %s to %s", oldName, newName)
	}
	return nil
}

// Swap atomically replaces a partition directory with a staged one. Used by
// restore: the incoming directory is fully extracted before the swap so a
// crash mid-restore never leaves a half-written live partition.
func (m *Manager) Swap(storageName, stagedDir string) error {
	m.mu.RLock()
	_, resident := m.loaded[storageName]
	m.mu.RUnlock()
	if resident {
		return fault.Validationf("partition %s is loaded", storageName)
	}
	dir := m.Dir(storageName)
	old := dir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fault.IOWrap(err, "clear stale partition backup")
	}
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, old); err != nil {
			return fault.IOWrap(err, "stage aside partition %s", storageName)
		}
	}
	if err := os.Rename(stagedDir, dir); err != nil {
		// Put the original back before reporting.
		os.Rename(old, dir)
		return fault.IOWrap(err, "swap in partition %s", storageName)
	}
	os.RemoveAll(old)
	return nil
}

func readLevel(dir string) (LevelMeta, error) {
	var meta LevelMeta
	b, err := os.ReadFile(filepath.Join(dir, levelFile))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, fault.Missingf("partition at %s has no level metadata", dir)
		}
		return meta, fault.IOWrap(err, "read level metadata")
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fault.IOWrap(err, "decode level metadata")
	}
	return meta, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fault.IOWrap(err, "encode %s", filepath.Base(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fault.IOWrap(err, "write %s", filepath.Base(path))
	}
	if err := os.Rename(tmp, path); err != nil {
		return fault.IOWrap(err, "commit %s", filepath.Base(path))
	}
	return nil
}
