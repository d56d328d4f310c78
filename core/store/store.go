// Package store declares the persistence contract of the scheduler. The
// sqlite and postgres backends under infra/store both satisfy it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/core/trigger"
)

// ErrNotFound is returned when an exam id does not exist.
var ErrNotFound = sidang.ErrNotFound

// ErrLockContention is returned when another writer holds the schedule lease.
var ErrLockContention = sidang.ErrLockContention

// ErrUnknownSetting is returned when a settings key is not in the closed set.
var ErrUnknownSetting = errors.New("unknown setting key")

// Store is everything the service reads and writes.
type Store interface {
	sidang.SettingsProvider
	sidang.RoomDirectory
	sidang.EligibilityProvider
	sidang.ExaminerDirectory

	// ListSchedule returns every stored exam, removed ones included, ordered
	// by date, start and room.
	ListSchedule(ctx context.Context) ([]model.ScheduledExam, error)
	// CommitRun persists a generated batch and the trigger in one transaction.
	CommitRun(ctx context.Context, exams []model.ScheduledExam, t trigger.Trigger) error
	// UpdateExams rewrites existing exams in one transaction.
	UpdateExams(ctx context.Context, exams []model.ScheduledExam) error
	// RemoveExam marks an active exam removed and keeps reason on the row.
	// The candidate is not offered to later runs.
	RemoveExam(ctx context.Context, id, reason string, at time.Time) error
	// DeleteAll removes every exam and stores t, returning the count removed.
	DeleteAll(ctx context.Context, t trigger.Trigger) (int, error)

	Trigger(ctx context.Context) (trigger.Trigger, error)
	SaveTrigger(ctx context.Context, t trigger.Trigger) error

	Locker
	Seeder
	Close() error
}

// Locker is the schedule lease shared by every process on the same
// database. One owner at a time may mutate the schedule.
type Locker interface {
	// AcquireLock takes or renews the lease for owner until now+ttl. A lease
	// held by another owner that has not expired yields ErrLockContention.
	AcquireLock(ctx context.Context, owner string, now time.Time, ttl time.Duration) error
	// ReleaseLock drops the lease if owner still holds it.
	ReleaseLock(ctx context.Context, owner string) error
}

// Seeder loads reference data: settings rows, rooms, lecturers and candidates.
type Seeder interface {
	PutSetting(ctx context.Context, key settings.Key, value string) error
	SyncRooms(ctx context.Context, rooms []string) error
	PutLecturer(ctx context.Context, l model.Lecturer, active bool) error
	PutCandidate(ctx context.Context, c model.Candidate, ready bool) error
}
