package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/manyworlds/server/internal/world"
)

// WorldRepo handles world persistence. One row per world; membership is a
// JSONB map of userID → role name.
type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo {
	return &WorldRepo{db: db}
}

const worldColumns = `id, name, owner_id, owner_name, gen_type, seed, seed_set,
	created_at, enabled, time_lock, weather_lock, entry_mode,
	spawn_x, spawn_y, spawn_z, spawn_yaw,
	border_size, border_center_x, border_center_z, border_damage, border_warning,
	membership, invited, public, public_join_role`

type worldScanner interface {
	Scan(dest ...any) error
}

func scanWorld(row worldScanner) (*world.World, error) {
	var (
		w          world.World
		genType    string
		membership []byte
		invited    []byte
		joinRole   string
	)
	err := row.Scan(
		&w.ID, &w.Name, &w.OwnerID, &w.OwnerName, &genType, &w.Seed, &w.SeedSet,
		&w.CreatedAt, &w.Enabled, &w.TimeLock, &w.WeatherLock, &w.EntryMode,
		&w.Spawn.X, &w.Spawn.Y, &w.Spawn.Z, &w.Spawn.Yaw,
		&w.Border.Size, &w.Border.CenterX, &w.Border.CenterZ, &w.Border.Damage, &w.Border.Warning,
		&membership, &invited, &w.Public, &joinRole,
	)
	if err != nil {
		return nil, err
	}
	w.GenType = world.GenType(genType)
	w.PublicJoinRole = world.ParseRole(joinRole)

	var roles map[string]string
	if err := json.Unmarshal(membership, &roles); err != nil {
		return nil, fmt.Errorf("decode membership for %s: %w", w.ID, err)
	}
	w.Members = make(map[string]world.Role, len(roles))
	for userID, name := range roles {
		w.Members[userID] = world.ParseRole(name)
	}

	// Legacy invited-set: folded into the membership map at Member role on
	// read, never written back. The logic layer sees one source of truth.
	if len(invited) > 0 {
		var legacy []string
		if err := json.Unmarshal(invited, &legacy); err == nil {
			for _, userID := range legacy {
				if userID == w.OwnerID {
					continue
				}
				if _, ok := w.Members[userID]; !ok {
					w.Members[userID] = world.RoleMember
				}
			}
		}
	}
	return &w, nil
}

// LoadAll loads every world record. Called at boot to warm the store cache.
func (r *WorldRepo) LoadAll(ctx context.Context) ([]*world.World, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+worldColumns+` FROM worlds ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.World
	for rows.Next() {
		w, err := scanWorld(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Upsert writes a world record, replacing the membership map wholesale.
// The legacy invited column is cleared on every write.
func (r *WorldRepo) Upsert(ctx context.Context, w *world.World) error {
	roles := make(map[string]string, len(w.Members))
	for userID, role := range w.Members {
		roles[userID] = role.String()
	}
	membership, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode membership: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO worlds (id, name, name_key, owner_id, owner_name, gen_type, seed, seed_set,
			created_at, enabled, time_lock, weather_lock, entry_mode,
			spawn_x, spawn_y, spawn_z, spawn_yaw,
			border_size, border_center_x, border_center_z, border_damage, border_warning,
			membership, invited, public, public_join_role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,NULL,$24,$25)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, name_key = EXCLUDED.name_key,
			owner_id = EXCLUDED.owner_id, owner_name = EXCLUDED.owner_name,
			gen_type = EXCLUDED.gen_type, seed = EXCLUDED.seed, seed_set = EXCLUDED.seed_set,
			enabled = EXCLUDED.enabled,
			time_lock = EXCLUDED.time_lock, weather_lock = EXCLUDED.weather_lock,
			entry_mode = EXCLUDED.entry_mode,
			spawn_x = EXCLUDED.spawn_x, spawn_y = EXCLUDED.spawn_y,
			spawn_z = EXCLUDED.spawn_z, spawn_yaw = EXCLUDED.spawn_yaw,
			border_size = EXCLUDED.border_size,
			border_center_x = EXCLUDED.border_center_x, border_center_z = EXCLUDED.border_center_z,
			border_damage = EXCLUDED.border_damage, border_warning = EXCLUDED.border_warning,
			membership = EXCLUDED.membership, invited = NULL,
			public = EXCLUDED.public, public_join_role = EXCLUDED.public_join_role`,
		w.ID, w.Name, world.FoldName(w.Name), w.OwnerID, w.OwnerName,
		string(w.GenType), w.Seed, w.SeedSet,
		w.CreatedAt, w.Enabled, w.TimeLock, w.WeatherLock, w.EntryMode,
		w.Spawn.X, w.Spawn.Y, w.Spawn.Z, w.Spawn.Yaw,
		w.Border.Size, w.Border.CenterX, w.Border.CenterZ, w.Border.Damage, w.Border.Warning,
		membership, w.Public, w.PublicJoinRole.String())
	return err
}

// Delete removes a world record.
func (r *WorldRepo) Delete(ctx context.Context, worldID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM worlds WHERE id = $1`, worldID)
	return err
}

// TransferOwnership swaps the world's owner and moves the world id between
// the two users' owned-world sets in a single transaction.
func (r *WorldRepo) TransferOwnership(ctx context.Context, w *world.World, oldOwnerID string, oldOwned, newOwned []string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	roles := make(map[string]string, len(w.Members))
	for userID, role := range w.Members {
		roles[userID] = role.String()
	}
	membership, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode membership: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE worlds SET owner_id = $1, owner_name = $2, membership = $3 WHERE id = $4`,
		w.OwnerID, w.OwnerName, membership, w.ID)
	if err != nil {
		return err
	}

	oldSet, err := json.Marshal(oldOwned)
	if err != nil {
		return err
	}
	newSet, err := json.Marshal(newOwned)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET owned_worlds = $1 WHERE id = $2`, oldSet, oldOwnerID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET owned_worlds = $1 WHERE id = $2`, newSet, w.OwnerID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
