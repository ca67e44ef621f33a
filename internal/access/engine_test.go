package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/store"
	"github.com/manyworlds/server/internal/world"
)

var (
	owner   = Subject{ID: "owner", Name: "Olive"}
	manager = Subject{ID: "mgr", Name: "Morgan"}
	member  = Subject{ID: "mem", Name: "Mel"}
	guest   = Subject{ID: "guest", Name: "Gus"}
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(nil, zap.NewNop())
	occ := world.NewOccupancy()
	return NewEngine(st, occ, 3, zap.NewNop()), st
}

func seedWorld(t *testing.T, st *store.Store) *world.World {
	t.Helper()
	w := &world.World{
		ID:        "w1",
		Name:      "Base",
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
		CreatedAt: time.Now(),
		Enabled:   true,
		Members: map[string]world.Role{
			manager.ID: world.RoleManager,
			member.ID:  world.RoleMember,
		},
		PublicJoinRole: world.RoleVisitor,
	}
	if err := st.PutWorld(context.Background(), w); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	return w
}

func TestAuthorizeRoles(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)

	role, err := e.Authorize("w1", owner.ID)
	if err != nil || role != world.RoleOwner {
		t.Fatalf("Authorize(owner) = %v, %v", role, err)
	}
	role, err = e.Authorize("w1", member.ID)
	if err != nil || role != world.RoleMember {
		t.Fatalf("Authorize(member) = %v, %v", role, err)
	}
	_, err = e.Authorize("w1", guest.ID)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("Authorize(stranger) = %v, want permission fault", err)
	}
}

func TestAuthorizePublicWorldAdmitsStrangers(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	w.Public = true
	w.PublicJoinRole = world.RoleVisitor
	st.PutWorld(context.Background(), w)

	role, err := e.Authorize("w1", guest.ID)
	if err != nil || role != world.RoleVisitor {
		t.Fatalf("Authorize(public stranger) = %v, %v", role, err)
	}
}

func TestAuthorizeDisabledWorldDeniesEveryone(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	w.Enabled = false
	st.PutWorld(context.Background(), w)

	_, err := e.Authorize("w1", owner.ID)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("Authorize(disabled, owner) = %v, want permission fault", err)
	}
}

func TestInvitePermissions(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	if err := e.Invite(ctx, owner, "w1", guest, world.RoleMember); err != nil {
		t.Fatalf("owner Invite() = %v", err)
	}
	err := e.Invite(ctx, member, "w1", Subject{ID: "x", Name: "X"}, world.RoleMember)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("member Invite() = %v, want permission fault", err)
	}
	err = e.Invite(ctx, manager, "w1", Subject{ID: "x", Name: "X"}, world.RoleManager)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("manager inviting manager = %v, want permission fault", err)
	}
}

func TestInviteRejectsDuplicatesAndMembers(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	e.Invite(ctx, owner, "w1", guest, world.RoleMember)
	err := e.Invite(ctx, manager, "w1", guest, world.RoleMember)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("duplicate Invite() = %v, want validation fault", err)
	}
	err = e.Invite(ctx, owner, "w1", member, world.RoleMember)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("Invite(existing member) = %v, want validation fault", err)
	}
	err = e.Invite(ctx, owner, "w1", owner, world.RoleMember)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("self Invite() = %v, want validation fault", err)
	}
}

func TestAcceptGrantsInvitedRole(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	ctx := context.Background()

	e.Invite(ctx, owner, "w1", guest, world.RoleVisitor)
	if err := e.Accept(ctx, "w1", guest.ID); err != nil {
		t.Fatalf("Accept() = %v", err)
	}
	if got := w.RoleOf(guest.ID); got != world.RoleVisitor {
		t.Fatalf("RoleOf(accepted) = %v, want visitor", got)
	}
	if st.Invite("w1", guest.ID) != nil {
		t.Fatalf("invite survived accept")
	}
	// Terminal: a consumed invite cannot be accepted again.
	err := e.Accept(ctx, "w1", guest.ID)
	if !errors.Is(err, fault.ErrMissing) {
		t.Fatalf("second Accept() = %v, want missing fault", err)
	}
}

func TestDenyConsumesInvite(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	ctx := context.Background()

	e.Invite(ctx, owner, "w1", guest, world.RoleMember)
	if err := e.Deny(ctx, "w1", guest.ID); err != nil {
		t.Fatalf("Deny() = %v", err)
	}
	if w.RoleOf(guest.ID) != world.RoleNone {
		t.Fatalf("deny granted membership")
	}
}

func TestCancelInviteRequiresInvitePower(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	e.Invite(ctx, owner, "w1", guest, world.RoleMember)
	err := e.CancelInvite(ctx, member, "w1", guest.ID)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("member CancelInvite() = %v, want permission fault", err)
	}
	if err := e.CancelInvite(ctx, manager, "w1", guest.ID); err != nil {
		t.Fatalf("manager CancelInvite() = %v", err)
	}
}

func TestKickRules(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	w.Members["mgr2"] = world.RoleManager
	ctx := context.Background()

	err := e.Kick(ctx, manager, "w1", owner.ID)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("Kick(owner) = %v, want permission fault", err)
	}
	err = e.Kick(ctx, manager, "w1", "mgr2")
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("manager Kick(manager) = %v, want permission fault", err)
	}
	if err := e.Kick(ctx, owner, "w1", "mgr2"); err != nil {
		t.Fatalf("owner Kick(manager) = %v", err)
	}
	if err := e.Kick(ctx, manager, "w1", member.ID); err != nil {
		t.Fatalf("manager Kick(member) = %v", err)
	}
	err = e.Kick(ctx, owner, "w1", "stranger")
	if !errors.Is(err, fault.ErrMissing) {
		t.Fatalf("Kick(non-member) = %v, want missing fault", err)
	}
}

func TestKickRelocatesPresentOccupant(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	e.occ.Enter("w1", "olive_base", member.ID)

	var relocated string
	e.SetRelocator(func(userID string) { relocated = userID })

	if err := e.Kick(context.Background(), owner, "w1", member.ID); err != nil {
		t.Fatalf("Kick() = %v", err)
	}
	if relocated != member.ID {
		t.Fatalf("relocated = %q, want %q", relocated, member.ID)
	}
}

func TestSetRoleRules(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	ctx := context.Background()

	if err := e.SetRole(ctx, owner, "w1", member.ID, world.RoleManager); err != nil {
		t.Fatalf("owner SetRole(manager) = %v", err)
	}
	if got := w.Members[member.ID]; got != world.RoleManager {
		t.Fatalf("role after promote = %v, want manager", got)
	}
	err := e.SetRole(ctx, manager, "w1", member.ID, world.RoleMember)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("manager demoting manager = %v, want permission fault", err)
	}
	err = e.SetRole(ctx, owner, "w1", member.ID, world.RoleOwner)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("SetRole(owner) = %v, want validation fault", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	ctx := context.Background()

	oldRec, _ := st.User(ctx, owner.ID, owner.Name)
	oldRec.OwnedWorlds["w1"] = struct{}{}
	newRec, _ := st.User(ctx, manager.ID, manager.Name)

	if err := e.TransferOwnership(ctx, owner, "w1", manager.ID); err != nil {
		t.Fatalf("TransferOwnership() = %v", err)
	}
	if w.OwnerID != manager.ID {
		t.Fatalf("owner = %q, want %q", w.OwnerID, manager.ID)
	}
	if got := w.Members[owner.ID]; got != world.RoleManager {
		t.Fatalf("old owner role = %v, want manager", got)
	}
	if _, ok := w.Members[manager.ID]; ok {
		t.Fatalf("new owner still in membership map")
	}
	if oldRec.Owns("w1") {
		t.Fatalf("old owner still owns w1")
	}
	if !newRec.Owns("w1") {
		t.Fatalf("new owner does not own w1")
	}
}

func TestTransferOwnershipGuards(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	err := e.TransferOwnership(ctx, manager, "w1", member.ID)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("non-owner transfer = %v, want permission fault", err)
	}
	err = e.TransferOwnership(ctx, owner, "w1", guest.ID)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("transfer to non-member = %v, want validation fault", err)
	}
}

func TestTransferOwnershipHonorsLimit(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	rec, _ := st.User(ctx, manager.ID, manager.Name)
	rec.OwnedWorlds["a"] = struct{}{}
	rec.OwnedWorlds["b"] = struct{}{}
	rec.OwnedWorlds["c"] = struct{}{}

	err := e.TransferOwnership(ctx, owner, "w1", manager.ID)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("transfer past limit = %v, want validation fault", err)
	}
}

func TestSetPublic(t *testing.T) {
	e, st := newTestEngine(t)
	w := seedWorld(t, st)
	ctx := context.Background()

	err := e.SetPublic(ctx, manager, "w1", true, world.RoleVisitor)
	if !errors.Is(err, fault.ErrPermission) {
		t.Fatalf("non-owner SetPublic() = %v, want permission fault", err)
	}
	err = e.SetPublic(ctx, owner, "w1", true, world.RoleManager)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("SetPublic(manager join role) = %v, want validation fault", err)
	}
	if err := e.SetPublic(ctx, owner, "w1", true, world.RoleMember); err != nil {
		t.Fatalf("SetPublic() = %v", err)
	}
	if !w.Public || w.PublicJoinRole != world.RoleMember {
		t.Fatalf("world = public %v role %v", w.Public, w.PublicJoinRole)
	}
}

func TestPendingInvites(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	ctx := context.Background()

	e.Invite(ctx, owner, "w1", guest, world.RoleMember)
	list := e.PendingInvites(guest.ID)
	if len(list) != 1 || list[0].WorldID != "w1" {
		t.Fatalf("PendingInvites() = %v", list)
	}
}
