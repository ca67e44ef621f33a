// Package scripting hosts the Lua hook engine. Operators drop scripts into
// the scripts directory to veto or observe world lifecycle events without
// rebuilding the server.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/world"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only: all
// hook calls run on the global coordinator lane. A nil *Engine is valid and
// allows everything, for hosts running without scripts.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. A missing directory yields an engine with no hooks defined.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	if err := e.loadDir(filepath.Join(scriptsDir, "hooks")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load hook scripts: %w", err)
	}
	return e, nil
}

// Close releases the VM.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.vm.Close()
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HookResult is what a veto hook returns. A hook that errors, returns a
// non-table, or is undefined allows the operation.
type HookResult struct {
	Allow  bool
	Reason string
}

var allow = HookResult{Allow: true}

// OnWorldCreate calls the on_world_create hook before a world is created.
func (e *Engine) OnWorldCreate(w *world.World) HookResult {
	if e == nil {
		return allow
	}
	return e.callVeto("on_world_create", e.worldTable(w))
}

// OnWorldLoad calls the on_world_load hook before a world becomes active.
func (e *Engine) OnWorldLoad(w *world.World) HookResult {
	if e == nil {
		return allow
	}
	return e.callVeto("on_world_load", e.worldTable(w))
}

// OnWorldDelete notifies scripts that a world was deleted.
func (e *Engine) OnWorldDelete(w *world.World) {
	if e == nil {
		return
	}
	e.notify("on_world_delete", e.worldTable(w))
}

// OnBackupDone notifies scripts that a backup archive was written.
func (e *Engine) OnBackupDone(b *world.Backup) {
	if e == nil {
		return
	}
	t := e.vm.NewTable()
	t.RawSetString("backup_id", lua.LString(b.ID))
	t.RawSetString("world_id", lua.LString(b.WorldID))
	t.RawSetString("world_name", lua.LString(b.WorldName))
	t.RawSetString("size_bytes", lua.LNumber(b.SizeBytes))
	t.RawSetString("automatic", lua.LBool(b.Automatic))
	e.notify("on_backup_done", t)
}

func (e *Engine) worldTable(w *world.World) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(w.ID))
	t.RawSetString("name", lua.LString(w.Name))
	t.RawSetString("owner_id", lua.LString(w.OwnerID))
	t.RawSetString("owner_name", lua.LString(w.OwnerName))
	t.RawSetString("gen_type", lua.LString(string(w.GenType)))
	t.RawSetString("seed", lua.LNumber(w.Seed))
	t.RawSetString("members", lua.LNumber(len(w.Members)))
	return t
}

func (e *Engine) callVeto(name string, arg *lua.LTable) HookResult {
	if e == nil {
		return allow
	}
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return allow
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
		return allow
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return allow
	}
	return HookResult{
		Allow:  rt.RawGetString("allow") != lua.LFalse,
		Reason: lua.LVAsString(rt.RawGetString("reason")),
	}
}

func (e *Engine) notify(name string, arg *lua.LTable) {
	if e == nil {
		return
	}
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, arg); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
	}
}
