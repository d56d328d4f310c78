// Package trigger models the single pending auto-run of the scheduler.
package trigger

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle of the scheduling trigger.
type State string

const (
	NotScheduled State = "not_scheduled"
	Scheduled    State = "scheduled"
	Done         State = "done"
)

// ErrInvalidTrigger is returned for transitions the current state forbids.
var ErrInvalidTrigger = errors.New("invalid trigger transition")

// ParseState accepts the stored state name, including the legacy labels.
func ParseState(s string) (State, error) {
	switch s {
	case string(NotScheduled), "BELUM_DIJADWALKAN", "":
		return NotScheduled, nil
	case string(Scheduled), "DIJADWALKAN":
		return Scheduled, nil
	case string(Done), "SELESAI":
		return Done, nil
	}
	return "", fmt.Errorf("unknown trigger state %q", s)
}

// Trigger is the one record that owns the auto-run state.
type Trigger struct {
	State     State      `json:"state"`
	RunAt     *time.Time `json:"run_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastError string     `json:"last_error,omitempty"`
}

// Schedule arms the trigger for runAt, replacing any pending time.
func (t Trigger) Schedule(runAt, now time.Time) (Trigger, error) {
	if !runAt.After(now) {
		return t, fmt.Errorf("%w: run time %s is not in the future", ErrInvalidTrigger, runAt.Format(time.RFC3339))
	}
	at := runAt.UTC()
	return Trigger{State: Scheduled, RunAt: &at, UpdatedAt: now}, nil
}

// Cancel disarms a pending trigger.
func (t Trigger) Cancel(now time.Time) (Trigger, error) {
	if t.State != Scheduled {
		return t, fmt.Errorf("%w: cannot cancel while %s", ErrInvalidTrigger, t.State)
	}
	return Trigger{State: NotScheduled, UpdatedAt: now}, nil
}

// Due reports whether a pending trigger should fire.
func (t Trigger) Due(now time.Time) bool {
	return t.State == Scheduled && t.RunAt != nil && !t.RunAt.After(now)
}

// Complete records a successful run.
func (t Trigger) Complete(now time.Time) Trigger {
	return Trigger{State: Done, RunAt: t.RunAt, UpdatedAt: now}
}

// Fail records a failed auto-run. The trigger returns to not_scheduled so
// the operator can fix the inputs and arm it again.
func (t Trigger) Fail(now time.Time, err error) Trigger {
	out := Trigger{State: NotScheduled, RunAt: t.RunAt, UpdatedAt: now}
	if err != nil {
		out.LastError = err.Error()
	}
	return out
}

// Reset clears the trigger, used when the whole schedule is deleted.
func (t Trigger) Reset(now time.Time) Trigger {
	return Trigger{State: NotScheduled, UpdatedAt: now}
}
