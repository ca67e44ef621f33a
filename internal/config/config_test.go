package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	body := `
[server]
name = "testhost"
data_dir = "/tmp/worlds"

[worlds]
default_world = "lobby"
default_limit = 5

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Server.Name != "testhost" || cfg.Server.DataDir != "/tmp/worlds" {
		t.Fatalf("server section = %+v", cfg.Server)
	}
	if cfg.Worlds.DefaultWorld != "lobby" || cfg.Worlds.DefaultLimit != 5 {
		t.Fatalf("worlds section = %+v", cfg.Worlds)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format = %q", cfg.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.Worlds.MaxNameLength != 32 || cfg.Backup.RetentionCap != 10 {
		t.Fatalf("defaults lost: %+v / %+v", cfg.Worlds, cfg.Backup)
	}
	if cfg.Server.StartTime == 0 {
		t.Fatalf("start time not stamped")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("Load(missing) = nil error")
	}
}

func TestLoadBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	os.WriteFile(path, []byte("[server\nname ="), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load(malformed) = nil error")
	}
}
