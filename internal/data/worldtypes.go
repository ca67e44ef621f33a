package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorldTypeEntry defines one generation preset from world_types.yaml.
type WorldTypeEntry struct {
	Type          string  `yaml:"type"`
	DefaultSeed   int64   `yaml:"default_seed"`
	SpawnX        float64 `yaml:"spawn_x"`
	SpawnY        float64 `yaml:"spawn_y"`
	SpawnZ        float64 `yaml:"spawn_z"`
	BorderSize    float64 `yaml:"border_size"`
	BorderDamage  float64 `yaml:"border_damage"`
	BorderWarning int     `yaml:"border_warning"`
	Note          string  `yaml:"note"`
}

// WorldTypeTable provides lookup of generation presets by type name.
type WorldTypeTable struct {
	types map[string]*WorldTypeEntry
}

// LoadWorldTypeTable loads world_types.yaml.
func LoadWorldTypeTable(path string) (*WorldTypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world types: %w", err)
	}
	var entries []WorldTypeEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse world types: %w", err)
	}
	t := &WorldTypeTable{types: make(map[string]*WorldTypeEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		t.types[e.Type] = e
	}
	return t, nil
}

// DefaultWorldTypeTable returns the built-in presets used when no catalog
// file is configured.
func DefaultWorldTypeTable() *WorldTypeTable {
	return &WorldTypeTable{types: map[string]*WorldTypeEntry{
		"default":   {Type: "default", SpawnY: 64, BorderSize: 10000, BorderDamage: 0.2, BorderWarning: 5},
		"flat":      {Type: "flat", SpawnY: 4, BorderSize: 10000, BorderDamage: 0.2, BorderWarning: 5},
		"void":      {Type: "void", SpawnY: 64, BorderSize: 1000, BorderDamage: 0.2, BorderWarning: 5},
		"amplified": {Type: "amplified", SpawnY: 128, BorderSize: 10000, BorderDamage: 0.2, BorderWarning: 5},
	}}
}

// Get returns the preset for a type name, or nil if unknown.
func (t *WorldTypeTable) Get(typ string) *WorldTypeEntry {
	return t.types[typ]
}

// Count returns the number of presets loaded.
func (t *WorldTypeTable) Count() int {
	return len(t.types)
}
