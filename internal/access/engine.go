// Package access enforces world membership rules: who may enter, invite,
// kick, change roles, and take ownership. All mutations run on the global
// coordinator lane; the engine itself holds no locks beyond the store's.
package access

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

// Subject identifies a user in a request. Names ride along from the session
// layer so records and invites carry display names without extra lookups.
type Subject struct {
	ID   string
	Name string
}

// Engine is the access control engine.
type Engine struct {
	store        *store.Store
	occ          *world.Occupancy
	log          *zap.Logger
	defaultLimit int

	// relocate moves a user out of a world they lost access to. Set by the
	// lifecycle manager after construction.
	relocate func(userID string)
}

func NewEngine(st *store.Store, occ *world.Occupancy, defaultLimit int, log *zap.Logger) *Engine {
	return &Engine{store: st, occ: occ, log: log, defaultLimit: defaultLimit}
}

// SetRelocator wires the lifecycle manager's evacuation path.
func (e *Engine) SetRelocator(fn func(userID string)) { e.relocate = fn }

// RoleOf resolves a user's effective role in a world.
func (e *Engine) RoleOf(worldID, userID string) (world.Role, error) {
	w := e.store.World(worldID)
	if w == nil {
		return world.RoleNone, fault.Missingf("world %s not found", worldID)
	}
	return w.RoleOf(userID), nil
}

// Authorize decides whether a user may enter a world and with what role.
// Public worlds admit non-members at the configured join role. Disabled
// worlds admit nobody; re-enabling is an owner action on the world record,
// not an entry path.
func (e *Engine) Authorize(worldID, userID string) (world.Role, error) {
	w := e.store.World(worldID)
	if w == nil {
		return world.RoleNone, fault.Missingf("world %s not found", worldID)
	}
	if !w.Enabled {
		return world.RoleNone, fault.Permissionf("world %s is disabled", w.Name)
	}
	role := w.RoleOf(userID)
	if role == world.RoleNone {
		if w.Public {
			return w.PublicJoinRole, nil
		}
		return world.RoleNone, fault.Permissionf("no access to world %s", w.Name)
	}
	return role, nil
}

// Invite offers a role in a world. At most one pending invite per
// (world, invitee); the offer stays valid until accepted, denied, or
// cancelled.
func (e *Engine) Invite(ctx context.Context, actor Subject, worldID string, invitee Subject, role world.Role) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if role == world.RoleNone {
		role = world.RoleMember
	}
	actorRole := w.RoleOf(actor.ID)
	if !actorRole.CanInvite() {
		return fault.Permissionf("%s cannot invite to world %s", actor.Name, w.Name)
	}
	if !actorRole.CanGrant(role) {
		return fault.Permissionf("%s cannot grant role %s", actor.Name, role)
	}
	if invitee.ID == actor.ID {
		return fault.Validationf("cannot invite yourself")
	}
	if invitee.ID == w.OwnerID {
		return fault.Validationf("%s already owns world %s", invitee.Name, w.Name)
	}
	if _, ok := w.Members[invitee.ID]; ok {
		return fault.Validationf("%s is already a member of world %s", invitee.Name, w.Name)
	}
	if e.store.Invite(worldID, invitee.ID) != nil {
		return fault.Validationf("%s already has a pending invite to world %s", invitee.Name, w.Name)
	}

	inv := &world.Invite{
		WorldID:     w.ID,
		WorldName:   w.Name,
		InviterID:   actor.ID,
		InviterName: actor.Name,
		InviteeID:   invitee.ID,
		InviteeName: invitee.Name,
		SentAt:      time.Now(),
		Role:        role,
	}
	if err := e.store.PutInvite(ctx, inv); err != nil {
		return err
	}
	e.log.Info("invite sent",
		zap.String("world", w.ID),
		zap.String("inviter", actor.ID),
		zap.String("invitee", invitee.ID),
		zap.String("role", role.String()))
	return nil
}

// Accept consumes a pending invite and grants its role.
func (e *Engine) Accept(ctx context.Context, worldID, userID string) error {
	inv := e.store.Invite(worldID, userID)
	if inv == nil {
		return fault.Missingf("no pending invite to world %s", worldID)
	}
	w := e.store.World(worldID)
	if w == nil {
		// World deleted since the offer; consume the invite anyway.
		e.store.DeleteInvite(ctx, worldID, userID)
		return fault.Missingf("world %s no longer exists", worldID)
	}
	if err := e.store.DeleteInvite(ctx, worldID, userID); err != nil {
		return err
	}
	if userID == w.OwnerID {
		return nil
	}
	w.Members[userID] = inv.Role
	if err := e.store.PutWorld(ctx, w); err != nil {
		return err
	}
	e.log.Info("invite accepted",
		zap.String("world", w.ID),
		zap.String("user", userID),
		zap.String("role", inv.Role.String()))
	return nil
}

// Deny consumes a pending invite without granting anything.
func (e *Engine) Deny(ctx context.Context, worldID, userID string) error {
	return e.store.DeleteInvite(ctx, worldID, userID)
}

// CancelInvite withdraws a pending invite. Any member who can invite can
// cancel, not only the original inviter.
func (e *Engine) CancelInvite(ctx context.Context, actor Subject, worldID, inviteeID string) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if !w.RoleOf(actor.ID).CanInvite() {
		return fault.Permissionf("%s cannot manage invites for world %s", actor.Name, w.Name)
	}
	return e.store.DeleteInvite(ctx, worldID, inviteeID)
}

// PendingInvites lists the open offers addressed to one user.
func (e *Engine) PendingInvites(userID string) []*world.Invite {
	return e.store.InvitesFor(userID)
}

// Kick revokes a member's access. The owner cannot be kicked, and a manager
// cannot kick a peer manager. If the target is currently inside the world
// they are relocated out.
func (e *Engine) Kick(ctx context.Context, actor Subject, worldID, targetID string) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	actorRole := w.RoleOf(actor.ID)
	if !actorRole.CanKick() {
		return fault.Permissionf("%s cannot kick from world %s", actor.Name, w.Name)
	}
	if targetID == w.OwnerID {
		return fault.Permissionf("the owner of world %s cannot be kicked", w.Name)
	}
	targetRole, ok := w.Members[targetID]
	if !ok {
		return fault.Missingf("user %s is not a member of world %s", targetID, w.Name)
	}
	if actorRole == world.RoleManager && targetRole == world.RoleManager {
		return fault.Permissionf("managers cannot kick other managers")
	}

	delete(w.Members, targetID)
	if err := e.store.PutWorld(ctx, w); err != nil {
		return err
	}
	e.log.Info("member kicked",
		zap.String("world", w.ID),
		zap.String("actor", actor.ID),
		zap.String("target", targetID))

	if e.occ.WorldOf(targetID) == worldID && e.relocate != nil {
		e.relocate(targetID)
	}
	return nil
}

// SetRole changes a member's role. The generic path never assigns Owner,
// and a manager can neither promote to manager nor touch a peer manager.
func (e *Engine) SetRole(ctx context.Context, actor Subject, worldID, targetID string, role world.Role) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if role == world.RoleNone || role == world.RoleOwner {
		return fault.Validationf("role %s cannot be assigned", role)
	}
	actorRole := w.RoleOf(actor.ID)
	if !actorRole.CanGrant(role) {
		return fault.Permissionf("%s cannot grant role %s", actor.Name, role)
	}
	if targetID == w.OwnerID {
		return fault.Validationf("the owner's role cannot be changed")
	}
	targetRole, ok := w.Members[targetID]
	if !ok {
		return fault.Missingf("user %s is not a member of world %s", targetID, w.Name)
	}
	if actorRole == world.RoleManager && targetRole == world.RoleManager {
		return fault.Permissionf("managers cannot change other managers")
	}

	w.Members[targetID] = role
	if err := e.store.PutWorld(ctx, w); err != nil {
		return err
	}
	e.log.Info("role changed",
		zap.String("world", w.ID),
		zap.String("target", targetID),
		zap.String("role", role.String()))
	return nil
}

// TransferOwnership hands a world to an existing member. The old owner
// stays on as a manager; the new owner leaves the membership map since
// ownership is held on the world record itself.
func (e *Engine) TransferOwnership(ctx context.Context, actor Subject, worldID, newOwnerID string) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may transfer world %s", w.Name)
	}
	if newOwnerID == w.OwnerID {
		return fault.Validationf("%s already owns world %s", actor.Name, w.Name)
	}
	if _, ok := w.Members[newOwnerID]; !ok {
		return fault.Validationf("ownership can only pass to an existing member")
	}

	oldRec, err := e.store.User(ctx, w.OwnerID, w.OwnerName)
	if err != nil {
		return err
	}
	newRec, err := e.store.User(ctx, newOwnerID, "")
	if err != nil {
		return err
	}
	if len(newRec.OwnedWorlds) >= e.limitOf(newRec) {
		return fault.Validationf("%s is at their world limit", newRec.Name)
	}

	oldOwnerID := w.OwnerID
	delete(w.Members, newOwnerID)
	w.Members[oldOwnerID] = world.RoleManager
	w.OwnerID = newOwnerID
	w.OwnerName = newRec.Name

	delete(oldRec.OwnedWorlds, w.ID)
	if newRec.OwnedWorlds == nil {
		newRec.OwnedWorlds = make(map[string]struct{})
	}
	newRec.OwnedWorlds[w.ID] = struct{}{}

	if err := e.store.TransferOwnership(ctx, w, oldRec, newRec); err != nil {
		return err
	}
	e.log.Info("ownership transferred",
		zap.String("world", w.ID),
		zap.String("from", oldOwnerID),
		zap.String("to", newOwnerID))
	return nil
}

// SetPublic opens or closes a world to non-members. Only the owner may
// change visibility, and the join role is capped at Member.
func (e *Engine) SetPublic(ctx context.Context, actor Subject, worldID string, public bool, joinRole world.Role) error {
	w := e.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may change visibility of world %s", w.Name)
	}
	if public {
		if joinRole != world.RoleVisitor && joinRole != world.RoleMember {
			return fault.Validationf("public join role must be visitor or member")
		}
		w.PublicJoinRole = joinRole
	}
	w.Public = public
	if err := e.store.PutWorld(ctx, w); err != nil {
		return err
	}
	e.log.Info("visibility changed",
		zap.String("world", w.ID),
		zap.Bool("public", public),
		zap.String("join_role", w.PublicJoinRole.String()))
	return nil
}

func (e *Engine) limitOf(u *world.UserRecord) int {
	if u.WorldLimit > 0 {
		return u.WorldLimit
	}
	return e.defaultLimit
}
