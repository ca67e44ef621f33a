package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/manyworlds/server/internal/world"
)

// UserRepo handles per-user records: owned-world set, creation limit,
// last-active world, and saved per-world player state.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get loads one user record, or nil if the user has none yet.
func (r *UserRepo) Get(ctx context.Context, userID string) (*world.UserRecord, error) {
	var (
		u     world.UserRecord
		owned []byte
		saved []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, owned_worlds, world_limit, last_world_id, saved_state
		 FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &owned, &u.WorldLimit, &u.LastWorldID, &saved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ownedList []string
	if err := json.Unmarshal(owned, &ownedList); err != nil {
		return nil, fmt.Errorf("decode owned worlds for %s: %w", userID, err)
	}
	u.OwnedWorlds = make(map[string]struct{}, len(ownedList))
	for _, id := range ownedList {
		u.OwnedWorlds[id] = struct{}{}
	}
	if err := json.Unmarshal(saved, &u.SavedState); err != nil {
		return nil, fmt.Errorf("decode saved state for %s: %w", userID, err)
	}
	return &u, nil
}

// Upsert writes a user record.
func (r *UserRepo) Upsert(ctx context.Context, u *world.UserRecord) error {
	ownedList := make([]string, 0, len(u.OwnedWorlds))
	for id := range u.OwnedWorlds {
		ownedList = append(ownedList, id)
	}
	owned, err := json.Marshal(ownedList)
	if err != nil {
		return fmt.Errorf("encode owned worlds: %w", err)
	}
	saved, err := json.Marshal(u.SavedState)
	if err != nil {
		return fmt.Errorf("encode saved state: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, name, owned_worlds, world_limit, last_world_id, saved_state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, owned_worlds = EXCLUDED.owned_worlds,
			world_limit = EXCLUDED.world_limit, last_world_id = EXCLUDED.last_world_id,
			saved_state = EXCLUDED.saved_state`,
		u.ID, u.Name, owned, u.WorldLimit, u.LastWorldID, saved)
	return err
}
