package persist

import (
	"context"
	"time"

	"github.com/manyworlds/server/internal/world"
)

// BackupRepo handles backup records and per-world backup schedules.
type BackupRepo struct {
	db *DB
}

func NewBackupRepo(db *DB) *BackupRepo {
	return &BackupRepo{db: db}
}

// LoadAll loads every backup record, oldest first.
func (r *BackupRepo) LoadAll(ctx context.Context) ([]*world.Backup, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, world_id, world_name, owner_id, owner_name, created_at,
		        path, size_bytes, digest, description, automatic
		 FROM backups ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.Backup
	for rows.Next() {
		var b world.Backup
		if err := rows.Scan(&b.ID, &b.WorldID, &b.WorldName, &b.OwnerID, &b.OwnerName,
			&b.CreatedAt, &b.Path, &b.SizeBytes, &b.Digest, &b.Description, &b.Automatic); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// Insert writes a new backup record. Backups are immutable: there is no
// update path.
func (r *BackupRepo) Insert(ctx context.Context, b *world.Backup) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO backups (id, world_id, world_name, owner_id, owner_name,
			created_at, path, size_bytes, digest, description, automatic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.WorldID, b.WorldName, b.OwnerID, b.OwnerName,
		b.CreatedAt, b.Path, b.SizeBytes, b.Digest, b.Description, b.Automatic)
	return err
}

// Delete removes one backup record.
func (r *BackupRepo) Delete(ctx context.Context, backupID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM backups WHERE id = $1`, backupID)
	return err
}

// DeleteByWorld removes all backup records for a world (deletion cascade).
func (r *BackupRepo) DeleteByWorld(ctx context.Context, worldID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM backups WHERE world_id = $1`, worldID)
	return err
}

// LoadSchedules loads every backup schedule.
func (r *BackupRepo) LoadSchedules(ctx context.Context) ([]*world.BackupSchedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT world_id, enabled, interval_minutes, last_run FROM backup_schedules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*world.BackupSchedule
	for rows.Next() {
		var (
			s       world.BackupSchedule
			minutes int
		)
		if err := rows.Scan(&s.WorldID, &s.Enabled, &minutes, &s.LastRun); err != nil {
			return nil, err
		}
		s.Interval = time.Duration(minutes) * time.Minute
		out = append(out, &s)
	}
	return out, rows.Err()
}

// UpsertSchedule writes a backup schedule.
func (r *BackupRepo) UpsertSchedule(ctx context.Context, s *world.BackupSchedule) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO backup_schedules (world_id, enabled, interval_minutes, last_run)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (world_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_minutes = EXCLUDED.interval_minutes,
			last_run = EXCLUDED.last_run`,
		s.WorldID, s.Enabled, int(s.Interval/time.Minute), s.LastRun)
	return err
}

// DeleteSchedule removes a world's backup schedule.
func (r *BackupRepo) DeleteSchedule(ctx context.Context, worldID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM backup_schedules WHERE world_id = $1`, worldID)
	return err
}
