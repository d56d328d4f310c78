package sidang

import (
	"context"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
)

// SettingsProvider parses stored settings into a typed value.
type SettingsProvider interface {
	SchedulingSettings(ctx context.Context) (settings.SchedulingSettings, error)
}

// RoomDirectory lists the rooms that may host a defense.
type RoomDirectory interface {
	ListRooms(ctx context.Context) ([]string, error)
}

// EligibilityProvider returns candidates ready for their defense.
type EligibilityProvider interface {
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// ExaminerDirectory returns the examiner pool with current loads.
type ExaminerDirectory interface {
	ListLecturersWithCurrentLoad(ctx context.Context) (model.ExaminerPool, error)
}
