package persist

import (
	"context"

	"github.com/manyworlds/server/internal/world"
)

// InviteRepo handles pending invites. The (world_id, invitee_id) primary
// key enforces the at-most-one-pending-invite rule at the storage layer too.
type InviteRepo struct {
	db *DB
}

func NewInviteRepo(db *DB) *InviteRepo {
	return &InviteRepo{db: db}
}

// LoadAll loads every pending invite. Called at boot to warm the store.
func (r *InviteRepo) LoadAll(ctx context.Context) ([]*world.Invite, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT world_id, world_name, inviter_id, inviter_name,
		        invitee_id, invitee_name, sent_at, role
		 FROM invites ORDER BY sent_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.Invite
	for rows.Next() {
		var (
			inv  world.Invite
			role string
		)
		if err := rows.Scan(&inv.WorldID, &inv.WorldName, &inv.InviterID, &inv.InviterName,
			&inv.InviteeID, &inv.InviteeName, &inv.SentAt, &role); err != nil {
			return nil, err
		}
		inv.Role = world.ParseRole(role)
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// Put inserts a pending invite.
func (r *InviteRepo) Put(ctx context.Context, inv *world.Invite) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO invites (world_id, world_name, inviter_id, inviter_name,
			invitee_id, invitee_name, sent_at, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.WorldID, inv.WorldName, inv.InviterID, inv.InviterName,
		inv.InviteeID, inv.InviteeName, inv.SentAt, inv.Role.String())
	return err
}

// Delete removes one pending invite. Missing rows are not an error: accept,
// deny, and cancel all race toward the same terminal state.
func (r *InviteRepo) Delete(ctx context.Context, worldID, inviteeID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM invites WHERE world_id = $1 AND invitee_id = $2`,
		worldID, inviteeID)
	return err
}

// DeleteByWorld removes all invites for a world (world deletion cascade).
func (r *InviteRepo) DeleteByWorld(ctx context.Context, worldID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM invites WHERE world_id = $1`, worldID)
	return err
}
