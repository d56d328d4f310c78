package sidang

import (
	"errors"

	"github.com/sita/sidang/core/settings"
)

var (
	// ErrCapacityExceeded is returned when a reservation would exceed the
	// per-examiner workload ceiling.
	ErrCapacityExceeded = errors.New("examiner capacity exceeded")
	ErrUnknownLecturer  = errors.New("unknown lecturer")
	// ErrInvalidRange is returned by MoveAll when the target date is not
	// after the source date.
	ErrInvalidRange = errors.New("invalid date range")
	ErrNotFound     = errors.New("not found")
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrNoCandidates is returned when a run has nobody to schedule.
	ErrNoCandidates = errors.New("no candidates ready for defense")
	// ErrLockContention is returned when another run or mutation holds the
	// schedule lock.
	ErrLockContention = errors.New("schedule is locked by another operation")
)

// ConfigurationError reports settings that prevent a run from starting.
type ConfigurationError = settings.ConfigurationError
