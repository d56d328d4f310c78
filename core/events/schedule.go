package events

import "time"

// Kind names a schedule change.
type Kind string

const (
	Generated        Kind = "generated"
	GenerationFailed Kind = "generation_failed"
	Edited           Kind = "edited"
	Swapped          Kind = "swapped"
	Moved            Kind = "moved"
	Deleted          Kind = "deleted"
	Cleared          Kind = "cleared"
	TriggerChanged   Kind = "trigger"
)

// ScheduleEvent is published after a schedule change has been committed.
// Duration is only set for generation events.
type ScheduleEvent struct {
	Kind     Kind          `json:"kind"`
	RunID    string        `json:"run_id,omitempty"`
	ExamIDs  []string      `json:"exam_ids,omitempty"`
	Count    int           `json:"count"`
	Reason   string        `json:"reason,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration,omitempty"`
}
