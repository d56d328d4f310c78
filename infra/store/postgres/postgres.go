// Package postgres implements store.Store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/core/trigger"
)

const (
	triggerID = 1
	lockID    = 1
)

// Store persists scheduling data in PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&settingRow{},
		&roomRow{},
		&lecturerRow{},
		&candidateRow{},
		&examRow{},
		&triggerRow{},
		&lockRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SchedulingSettings parses the stored settings rows. When no room setting
// is stored the room table is used. The result is not validated.
func (s *Store) SchedulingSettings(ctx context.Context) (settings.SchedulingSettings, error) {
	var rows []settingRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return settings.SchedulingSettings{}, err
	}
	kv := make(map[string]string, len(rows))
	for _, r := range rows {
		kv[r.Key] = r.Value
	}
	out, err := settings.Parse(kv)
	if err != nil {
		return out, err
	}
	if len(out.Rooms) == 0 {
		if out.Rooms, err = s.ListRooms(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// PutSetting stores one settings row.
func (s *Store) PutSetting(ctx context.Context, key settings.Key, value string) error {
	if !settings.Known(string(key)) {
		return fmt.Errorf("%w: %s", store.ErrUnknownSetting, key)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&settingRow{Key: string(key), Value: value}).Error
}

// ListRooms returns the rooms in their configured order.
func (s *Store) ListRooms(ctx context.Context) ([]string, error) {
	var rows []roomRow
	if err := s.db.WithContext(ctx).Order("position, name").Find(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]string, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.Name)
	}
	return res, nil
}

// SyncRooms replaces the room list.
func (s *Store) SyncRooms(ctx context.Context, rooms []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&roomRow{}).Error; err != nil {
			return err
		}
		for i, r := range rooms {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&roomRow{Name: r, Position: i}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PutLecturer inserts or updates a lecturer.
func (s *Store) PutLecturer(ctx context.Context, l model.Lecturer, active bool) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&lecturerRow{ID: l.ID, Name: l.Name, Active: active}).Error
}

// ListLecturersWithCurrentLoad returns active lecturers and the number of
// examining seats each holds in the stored schedule.
func (s *Store) ListLecturersWithCurrentLoad(ctx context.Context) (model.ExaminerPool, error) {
	var rows []loadRow
	err := s.db.WithContext(ctx).Raw(`SELECT l.id, l.name,
        (SELECT COUNT(*) FROM exams e WHERE e.status <> ? AND
            (e.sekretaris = l.id OR e.anggota1 = l.id OR e.anggota2 = l.id)) AS seats
        FROM lecturers l WHERE l.active ORDER BY l.id`, string(model.ExamRemoved)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var pool model.ExaminerPool
	for _, r := range rows {
		pool = append(pool, model.Lecturer{ID: r.ID, Name: r.Name, Load: r.Seats})
	}
	return pool, nil
}

// PutCandidate inserts or updates a candidate.
func (s *Store) PutCandidate(ctx context.Context, c model.Candidate, ready bool) error {
	row := candidateRow{
		ID:            c.ID,
		ThesisID:      c.ThesisID,
		Title:         c.Title,
		Name:          c.Name,
		StudentNumber: c.StudentNumber,
		Supervisor1ID: c.Supervisor1ID,
		Supervisor2ID: c.Supervisor2ID,
		SubmittedAt:   c.SubmittedAt,
		Ready:         ready,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// ListCandidates returns ready candidates without a stored exam, oldest
// submission first. A removed exam still counts.
func (s *Store) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	var rows []candidateRow
	err := s.db.WithContext(ctx).
		Where("ready AND NOT EXISTS (SELECT 1 FROM exams e WHERE e.candidate_id = candidates.id)").
		Order("submitted_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]model.Candidate, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

// ListSchedule returns every stored exam ordered by slot.
func (s *Store) ListSchedule(ctx context.Context) ([]model.ScheduledExam, error) {
	var rows []examRow
	err := s.db.WithContext(ctx).
		Select("exams.*").
		Joins("LEFT JOIN rooms ON rooms.name = exams.room").
		Order("exams.date, exams.start_min, rooms.position, exams.room, exams.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]model.ScheduledExam, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("exam %s: %w", r.ID, err)
		}
		res = append(res, e)
	}
	return res, nil
}

// CommitRun inserts the generated exams and stores the trigger atomically.
func (s *Store) CommitRun(ctx context.Context, exams []model.ScheduledExam, t trigger.Trigger) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range exams {
			row := examFromModel(e)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert exam %s: %w", e.ID, err)
			}
		}
		return saveTrigger(tx, t)
	})
}

// UpdateExams rewrites the given exams. An unknown id aborts the batch.
func (s *Store) UpdateExams(ctx context.Context, exams []model.ScheduledExam) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range exams {
			row := examFromModel(e)
			res := tx.Model(&examRow{}).Where("id = ?", e.ID).Select("*").Omit("id").Updates(&row)
			if res.Error != nil {
				return fmt.Errorf("update exam %s: %w", e.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: exam %s", store.ErrNotFound, e.ID)
			}
		}
		return nil
	})
}

// RemoveExam marks an active exam removed and stores the reason.
func (s *Store) RemoveExam(ctx context.Context, id, reason string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&examRow{}).
		Where("id = ? AND status <> ?", id, string(model.ExamRemoved)).
		Updates(map[string]any{
			"status":         string(model.ExamRemoved),
			"removal_reason": reason,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: exam %s", store.ErrNotFound, id)
	}
	return nil
}

// DeleteAll removes every exam and stores t in the same transaction.
func (s *Store) DeleteAll(ctx context.Context, t trigger.Trigger) (int, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("1 = 1").Delete(&examRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return saveTrigger(tx, t)
	})
	return int(deleted), err
}

// AcquireLock takes the lease row with SELECT ... FOR UPDATE so concurrent
// callers queue on the row and see each other's owner.
func (s *Store) AcquireLock(ctx context.Context, owner string, now time.Time, ttl time.Duration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lockRow{ID: lockID}).Error; err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		var row lockRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, lockID).Error; err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if row.LockedBy != "" && row.LockedBy != owner && row.ExpiresAt.After(now) {
			return store.ErrLockContention
		}
		return tx.Model(&lockRow{}).Where("id = ?", lockID).Updates(map[string]any{
			"locked_by":  owner,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		}).Error
	})
}

// ReleaseLock frees the lease when owner holds it.
func (s *Store) ReleaseLock(ctx context.Context, owner string) error {
	return s.db.WithContext(ctx).Model(&lockRow{}).
		Where("id = ? AND locked_by = ?", lockID, owner).
		Update("locked_by", "").Error
}

// Trigger loads the trigger record. A missing row reads as not scheduled.
func (s *Store) Trigger(ctx context.Context) (trigger.Trigger, error) {
	var row triggerRow
	err := s.db.WithContext(ctx).First(&row, triggerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trigger.Trigger{State: trigger.NotScheduled}, nil
	}
	if err != nil {
		return trigger.Trigger{}, err
	}
	st, err := trigger.ParseState(row.State)
	if err != nil {
		return trigger.Trigger{}, err
	}
	t := trigger.Trigger{State: st, UpdatedAt: row.ChangedAt.UTC(), LastError: row.LastError}
	if row.RunAt != nil {
		at := row.RunAt.UTC()
		t.RunAt = &at
	}
	return t, nil
}

// SaveTrigger stores the trigger record.
func (s *Store) SaveTrigger(ctx context.Context, t trigger.Trigger) error {
	return saveTrigger(s.db.WithContext(ctx), t)
}

func saveTrigger(db *gorm.DB, t trigger.Trigger) error {
	row := triggerRow{
		ID:        triggerID,
		State:     string(t.State),
		RunAt:     t.RunAt,
		ChangedAt: t.UpdatedAt,
		LastError: t.LastError,
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}
