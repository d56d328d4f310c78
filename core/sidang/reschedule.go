package sidang

import (
	"fmt"
	"time"

	"github.com/sita/sidang/core/model"
)

// MoveAll shifts every exam dated on or after fromDate so that fromDate
// lands on toDate. Relative day offsets, times and rooms are kept. It does
// not re-check holidays. toDate must be after fromDate.
func MoveAll(schedule []model.ScheduledExam, fromDate, toDate time.Time) ([]model.ScheduledExam, int, error) {
	from, to := model.Day(fromDate), model.Day(toDate)
	if !to.After(from) {
		return nil, 0, fmt.Errorf("%w: target %s must be after %s", ErrInvalidRange,
			to.Format(model.DateLayout), from.Format(model.DateLayout))
	}
	out, moved := Shift(schedule, from, to)
	return out, moved, nil
}

// Shift applies the MoveAll transform in either direction. It returns a new
// slice and the number of exams whose date changed.
func Shift(schedule []model.ScheduledExam, fromDate, toDate time.Time) ([]model.ScheduledExam, int) {
	from, to := model.Day(fromDate), model.Day(toDate)
	out := make([]model.ScheduledExam, len(schedule))
	moved := 0
	for i, e := range schedule {
		out[i] = e
		d := model.Day(e.Slot.Date)
		if d.Before(from) || e.Status == model.ExamRemoved {
			continue
		}
		out[i].Slot.Date = to.AddDate(0, 0, model.DaysBetween(from, d))
		if !out[i].Slot.Date.Equal(d) {
			moved++
		}
	}
	return out, moved
}
