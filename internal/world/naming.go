package world

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/manyworlds/server/internal/fault"
	"golang.org/x/text/cases"
)

// Dimension suffixes. Every world has the primary partition plus one
// auxiliary partition per suffix; storage names derive deterministically
// from (owner display name, world display name, suffix).
const (
	DimPrimary = ""
	DimNether  = "_nether"
	DimEnd     = "_the_end"
)

// Dimensions lists all partition suffixes of a world, primary first.
var Dimensions = []string{DimPrimary, DimNether, DimEnd}

var nameFolder = cases.Fold()

// FoldName returns the case-insensitive uniqueness key for a display name.
func FoldName(name string) string {
	return nameFolder.String(name)
}

// ValidateName checks a world display name: non-empty, bounded length,
// alphanumeric plus underscore only.
func ValidateName(name string, maxLen int) error {
	if name == "" {
		return fault.Validationf("world name is empty")
	}
	if len(name) > maxLen {
		return fault.Validationf("world name %q exceeds %d characters", name, maxLen)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return fault.Validationf("world name %q contains illegal character %q", name, r)
		}
	}
	return nil
}

// StorageName derives the on-disk name of one partition. Lower-cased so the
// same (owner, world, dimension) triple always maps to the same directory.
func StorageName(ownerName, worldName, dimension string) string {
	return strings.ToLower(ownerName + "_" + worldName + dimension)
}

// StorageNames returns the storage names of all partitions, primary first.
func StorageNames(ownerName, worldName string) []string {
	out := make([]string, len(Dimensions))
	for i, dim := range Dimensions {
		out[i] = StorageName(ownerName, worldName, dim)
	}
	return out
}

// NewID allocates an opaque world/backup identifier.
func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("id entropy unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
