package event

// OccupantEntered fires when a user appears in a world partition, including
// the initial session join.
type OccupantEntered struct {
	UserID    string
	WorldID   string
	Partition string
}

// OccupantLeft fires when a user leaves a partition (quit or disconnect).
// Implicit reports a presence the occupancy registry may still count; the
// eviction scheduler excludes the user when re-checking emptiness.
type OccupantLeft struct {
	UserID    string
	WorldID   string
	Partition string
	Implicit  bool
}

// OccupantChangedWorld fires on a cross-world move. The eviction scheduler
// treats it as a leave from Source plus an enter into Dest.
type OccupantChangedWorld struct {
	UserID        string
	SourceWorldID string
	DestWorldID   string
	DestPartition string
}

// OccupantRespawnRequested fires when a dead occupant asks to respawn; the
// lifecycle manager answers with the world spawn or the fallback location.
type OccupantRespawnRequested struct {
	UserID  string
	WorldID string
}
