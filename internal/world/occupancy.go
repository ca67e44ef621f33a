package world

import "sync"

// Occupancy tracks which users are present in which partition. Enter/leave
// events arrive from partition workers while the eviction scheduler reads
// totals from the coordinator lane, so access is mutex-guarded.
type Occupancy struct {
	mu       sync.RWMutex
	byWorld  map[string]map[string]map[string]struct{} // worldID → partition → userIDs
	location map[string]occupantLoc                    // userID → current location
}

type occupantLoc struct {
	worldID   string
	partition string
}

func NewOccupancy() *Occupancy {
	return &Occupancy{
		byWorld:  make(map[string]map[string]map[string]struct{}),
		location: make(map[string]occupantLoc),
	}
}

// Enter records a user inside a partition, removing them from any previous
// location first (a cross-world move is a leave plus an enter).
func (o *Occupancy) Enter(worldID, partition, userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeLocked(userID)
	parts := o.byWorld[worldID]
	if parts == nil {
		parts = make(map[string]map[string]struct{})
		o.byWorld[worldID] = parts
	}
	set := parts[partition]
	if set == nil {
		set = make(map[string]struct{}, 1)
		parts[partition] = set
	}
	set[userID] = struct{}{}
	o.location[userID] = occupantLoc{worldID: worldID, partition: partition}
}

// Leave removes a user from wherever they are. Unknown users are a no-op.
func (o *Occupancy) Leave(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeLocked(userID)
}

func (o *Occupancy) removeLocked(userID string) {
	loc, ok := o.location[userID]
	if !ok {
		return
	}
	delete(o.location, userID)
	parts := o.byWorld[loc.worldID]
	if parts == nil {
		return
	}
	set := parts[loc.partition]
	delete(set, userID)
	if len(set) == 0 {
		delete(parts, loc.partition)
	}
	if len(parts) == 0 {
		delete(o.byWorld, loc.worldID)
	}
}

// Count returns total occupants across all partitions of a world.
func (o *Occupancy) Count(worldID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, set := range o.byWorld[worldID] {
		n += len(set)
	}
	return n
}

// CountExcluding counts occupants of a world, ignoring one user. Used when
// a leave event fires before the host has dropped the implicit presence.
func (o *Occupancy) CountExcluding(worldID, userID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, set := range o.byWorld[worldID] {
		n += len(set)
		if _, ok := set[userID]; ok {
			n--
		}
	}
	return n
}

// Occupants returns every user currently in a world, with their partition.
func (o *Occupancy) Occupants(worldID string) map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string)
	for partition, set := range o.byWorld[worldID] {
		for userID := range set {
			out[userID] = partition
		}
	}
	return out
}

// WorldOf returns the world a user currently occupies, or "".
func (o *Occupancy) WorldOf(userID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.location[userID].worldID
}

// Worlds lists every world id with at least one occupant.
func (o *Occupancy) Worlds() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.byWorld))
	for id := range o.byWorld {
		out = append(out, id)
	}
	return out
}
