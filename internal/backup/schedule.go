package backup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/manyworlds/server/internal/access"
	"github.com/manyworlds/server/internal/fault"
	"github.com/manyworlds/server/internal/world"
)

// minInterval is the shortest allowed automatic backup cadence.
const minInterval = 5 * time.Minute

// Schedule records are replaced, never mutated in place: the runner's
// success continuation and the next RunDue tick read them without a lock.

// SetSchedule enables automatic backups for a world at the given interval.
func (s *Service) SetSchedule(ctx context.Context, actor access.Subject, worldID string, interval time.Duration) error {
	w := s.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may schedule backups of world %s", w.Name)
	}
	if interval < minInterval {
		return fault.Validationf("backup interval must be at least %s", minInterval)
	}
	upd := world.BackupSchedule{WorldID: worldID}
	if sc := s.store.Schedule(worldID); sc != nil {
		upd = *sc
	}
	upd.Enabled = true
	upd.Interval = interval
	if err := s.store.PutSchedule(ctx, &upd); err != nil {
		return err
	}
	s.log.Info("backup schedule set",
		zap.String("world", worldID), zap.Duration("interval", interval))
	return nil
}

// DisableSchedule stops automatic backups for a world. The schedule record
// is kept so re-enabling restores the old cadence.
func (s *Service) DisableSchedule(ctx context.Context, actor access.Subject, worldID string) error {
	w := s.store.World(worldID)
	if w == nil {
		return fault.Missingf("world %s not found", worldID)
	}
	if actor.ID != w.OwnerID {
		return fault.Permissionf("only the owner may schedule backups of world %s", w.Name)
	}
	sc := s.store.Schedule(worldID)
	if sc == nil || !sc.Enabled {
		return nil
	}
	upd := *sc
	upd.Enabled = false
	if err := s.store.PutSchedule(ctx, &upd); err != nil {
		return err
	}
	s.log.Info("backup schedule disabled", zap.String("world", worldID))
	return nil
}

// RunDue fires automatic backups for every schedule whose interval has
// elapsed. LastRun advances only on success, so a failed backup is retried
// on the next pass instead of being silently skipped for a full interval.
func (s *Service) RunDue(now time.Time) {
	for _, sc := range s.store.Schedules() {
		if !sc.Due(now) {
			continue
		}
		schedule := sc
		done := s.CreateAutomatic(schedule.WorldID)
		go func() {
			_, err := done.Await(context.Background())
			if err != nil {
				s.log.Warn("scheduled backup failed",
					zap.String("world", schedule.WorldID), zap.Error(err))
				return
			}
			upd := *schedule
			upd.LastRun = now
			if err := s.store.PutSchedule(context.Background(), &upd); err != nil {
				s.log.Warn("schedule update failed",
					zap.String("world", schedule.WorldID), zap.Error(err))
			}
		}()
	}
}
