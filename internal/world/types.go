package world

import "time"

// Role is a fixed capability set within one world. Ownership is implicit:
// the owner never appears in the membership map.
type Role int16

const (
	RoleNone Role = iota
	RoleVisitor
	RoleMember
	RoleManager
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleVisitor:
		return "visitor"
	case RoleMember:
		return "member"
	case RoleManager:
		return "manager"
	case RoleOwner:
		return "owner"
	}
	return "none"
}

// ParseRole maps a stored role name back to a Role. Unknown names resolve
// to RoleNone so stale rows degrade to "no access" rather than escalating.
func ParseRole(s string) Role {
	switch s {
	case "visitor":
		return RoleVisitor
	case "member":
		return RoleMember
	case "manager":
		return RoleManager
	case "owner":
		return RoleOwner
	}
	return RoleNone
}

// CanInvite reports whether the role may send invites.
func (r Role) CanInvite() bool { return r == RoleOwner || r == RoleManager }

// CanKick reports whether the role may revoke another member's access.
func (r Role) CanKick() bool { return r == RoleOwner || r == RoleManager }

// SpectatorOnly reports whether entry is restricted to spectator mode.
func (r Role) SpectatorOnly() bool { return r == RoleVisitor }

// CanGrant reports whether a holder of r may assign role g to someone else.
// Managers cannot grant Manager or Owner; Owner is never grantable through
// the generic path (ownership transfer is the only route).
func (r Role) CanGrant(g Role) bool {
	if g == RoleOwner {
		return false
	}
	if r == RoleOwner {
		return true
	}
	return r == RoleManager && g != RoleManager
}

// GenType selects the generation preset for a world's primary partition.
type GenType string

const (
	GenDefault   GenType = "default"
	GenFlat      GenType = "flat"
	GenVoid      GenType = "void"
	GenAmplified GenType = "amplified"
)

// EntryMode is the play mode assigned on entering a world.
type EntryMode int16

const (
	EntrySurvival EntryMode = iota
	EntryCreative
	EntryAdventure
	EntrySpectator
)

// TimePolicy locks a world's day cycle. Applied after every load: partition
// state does not persist transient policy enforcement across restarts.
type TimePolicy int16

const (
	TimeFree TimePolicy = iota
	TimeLockDay
	TimeLockNight
)

// WeatherPolicy locks a world's weather.
type WeatherPolicy int16

const (
	WeatherFree WeatherPolicy = iota
	WeatherLockClear
	WeatherLockRain
)

// Spawn is a coordinate inside a partition.
type Spawn struct {
	X, Y, Z float64
	Yaw     float32
}

// Border is a world's boundary policy.
type Border struct {
	Size     float64
	CenterX  float64
	CenterZ  float64
	Damage   float64
	Warning  int
}

// World is one named spatial resource owned by exactly one user.
// Owner is never a key in Members; exactly one effective owner at all times.
type World struct {
	ID        string
	Name      string
	OwnerID   string
	OwnerName string

	GenType   GenType
	Seed      int64
	SeedSet   bool
	CreatedAt time.Time
	Enabled   bool

	TimeLock    TimePolicy
	WeatherLock WeatherPolicy
	EntryMode   EntryMode
	Spawn       Spawn
	Border      Border

	Members map[string]Role // userID → role; owner excluded

	Public         bool
	PublicJoinRole Role // auto-granted to anonymous public entrants
}

// RoleOf resolves a user's effective role in this world. Admin bypass is a
// platform-level override evaluated by the caller, not stored here.
func (w *World) RoleOf(userID string) Role {
	if userID == w.OwnerID {
		return RoleOwner
	}
	if r, ok := w.Members[userID]; ok {
		return r
	}
	return RoleNone
}

// Invite is one pending offer. At most one exists per (world, invitee);
// accept, deny, and cancel are all terminal.
type Invite struct {
	WorldID     string
	WorldName   string
	InviterID   string
	InviterName string
	InviteeID   string
	InviteeName string
	SentAt      time.Time
	Role        Role // granted on acceptance
}

// Backup is an immutable snapshot record. Created only by the backup
// subsystem, never mutated, deleted individually or when its world goes.
type Backup struct {
	ID          string
	WorldID     string
	WorldName   string
	OwnerID     string
	OwnerName   string
	CreatedAt   time.Time
	Path        string
	SizeBytes   int64
	Digest      string // blake2b-256 of the archive, hex
	Description string
	Automatic   bool
}

// BackupSchedule is the optional per-world automatic backup cadence.
type BackupSchedule struct {
	WorldID  string
	Enabled  bool
	Interval time.Duration
	LastRun  time.Time
}

// Due reports whether an automatic backup should run now.
func (s *BackupSchedule) Due(now time.Time) bool {
	return s.Enabled && s.Interval > 0 && now.Sub(s.LastRun) >= s.Interval
}

// PlayerState is the saved per-world player snapshot, keyed by partition.
type PlayerState struct {
	Partition string   `json:"partition"`
	Health    float64  `json:"health"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Z         float64  `json:"z"`
	Inventory []string `json:"inventory,omitempty"`
}

// UserRecord is the per-user persistent record.
type UserRecord struct {
	ID          string
	Name        string
	OwnedWorlds map[string]struct{}
	WorldLimit  int    // 0 = use configured default
	LastWorldID string // for session restore
	SavedState  map[string]PlayerState // partition name → snapshot
}

// Owns reports whether the user owns the given world id.
func (u *UserRecord) Owns(worldID string) bool {
	_, ok := u.OwnedWorlds[worldID]
	return ok
}
