package persist

import (
	"context"

	"github.com/manyworlds/server/internal/world"
)

// Backend bundles the repositories behind the entity store's persistence
// surface.
type Backend struct {
	worlds  *WorldRepo
	users   *UserRepo
	invites *InviteRepo
	backups *BackupRepo
}

func NewBackend(db *DB) *Backend {
	return &Backend{
		worlds:  NewWorldRepo(db),
		users:   NewUserRepo(db),
		invites: NewInviteRepo(db),
		backups: NewBackupRepo(db),
	}
}

func (b *Backend) LoadWorlds(ctx context.Context) ([]*world.World, error) {
	return b.worlds.LoadAll(ctx)
}

func (b *Backend) PutWorld(ctx context.Context, w *world.World) error {
	return b.worlds.Upsert(ctx, w)
}

func (b *Backend) DeleteWorld(ctx context.Context, worldID string) error {
	return b.worlds.Delete(ctx, worldID)
}

func (b *Backend) TransferOwnership(ctx context.Context, w *world.World, oldOwnerID string, oldOwned, newOwned []string) error {
	return b.worlds.TransferOwnership(ctx, w, oldOwnerID, oldOwned, newOwned)
}

func (b *Backend) GetUser(ctx context.Context, userID string) (*world.UserRecord, error) {
	return b.users.Get(ctx, userID)
}

func (b *Backend) PutUser(ctx context.Context, u *world.UserRecord) error {
	return b.users.Upsert(ctx, u)
}

func (b *Backend) LoadInvites(ctx context.Context) ([]*world.Invite, error) {
	return b.invites.LoadAll(ctx)
}

func (b *Backend) PutInvite(ctx context.Context, inv *world.Invite) error {
	return b.invites.Put(ctx, inv)
}

func (b *Backend) DeleteInvite(ctx context.Context, worldID, inviteeID string) error {
	return b.invites.Delete(ctx, worldID, inviteeID)
}

func (b *Backend) DeleteWorldInvites(ctx context.Context, worldID string) error {
	return b.invites.DeleteByWorld(ctx, worldID)
}

func (b *Backend) LoadBackups(ctx context.Context) ([]*world.Backup, error) {
	return b.backups.LoadAll(ctx)
}

func (b *Backend) PutBackup(ctx context.Context, bk *world.Backup) error {
	return b.backups.Insert(ctx, bk)
}

func (b *Backend) DeleteBackup(ctx context.Context, backupID string) error {
	return b.backups.Delete(ctx, backupID)
}

func (b *Backend) DeleteWorldBackups(ctx context.Context, worldID string) error {
	return b.backups.DeleteByWorld(ctx, worldID)
}

func (b *Backend) LoadSchedules(ctx context.Context) ([]*world.BackupSchedule, error) {
	return b.backups.LoadSchedules(ctx)
}

func (b *Backend) PutSchedule(ctx context.Context, s *world.BackupSchedule) error {
	return b.backups.UpsertSchedule(ctx, s)
}

func (b *Backend) DeleteSchedule(ctx context.Context, worldID string) error {
	return b.backups.DeleteSchedule(ctx, worldID)
}
