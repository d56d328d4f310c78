package sidang

import (
	"fmt"
	"time"

	"github.com/sita/sidang/core/model"
)

// ConflictReason says why an edit was refused.
type ConflictReason string

const (
	RoomOccupied     ConflictReason = "room_occupied"
	LecturerBusy     ConflictReason = "lecturer_busy"
	CapacityExceeded ConflictReason = "capacity_exceeded"
)

// EditConflict is returned when an edit would collide with another entry.
// The original schedule is never modified.
type EditConflict struct {
	Reason            ConflictReason `json:"reason"`
	ConflictingExamID string         `json:"conflicting_exam_id,omitempty"`
	LecturerID        string         `json:"lecturer_id,omitempty"`
}

func (e *EditConflict) Error() string {
	switch {
	case e.LecturerID != "" && e.ConflictingExamID != "":
		return fmt.Sprintf("edit conflict: %s: lecturer %s in exam %s", e.Reason, e.LecturerID, e.ConflictingExamID)
	case e.LecturerID != "":
		return fmt.Sprintf("edit conflict: %s: lecturer %s", e.Reason, e.LecturerID)
	}
	return fmt.Sprintf("edit conflict: %s with exam %s", e.Reason, e.ConflictingExamID)
}

// Patch holds the fields of an exam to change. Nil fields are kept.
type Patch struct {
	Date       *time.Time   `json:"date,omitempty"`
	Start      *model.Clock `json:"start,omitempty"`
	End        *model.Clock `json:"end,omitempty"`
	Room       *string      `json:"room,omitempty"`
	Sekretaris *string      `json:"sekretaris,omitempty"`
	Anggota1   *string      `json:"anggota1,omitempty"`
	Anggota2   *string      `json:"anggota2,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Date == nil && p.Start == nil && p.End == nil && p.Room == nil &&
		p.Sekretaris == nil && p.Anggota1 == nil && p.Anggota2 == nil
}

// Editor applies single-entry changes and re-validates them against the
// rest of the schedule.
type Editor struct {
	// MaxExamsPerExaminer caps drawn-examiner appearances. Zero disables it.
	MaxExamsPerExaminer int
	// Rooms restricts the room field when non-empty.
	Rooms []string
	Now   func() time.Time
}

func (ed Editor) now() time.Time {
	if ed.Now != nil {
		return ed.Now()
	}
	return time.Now()
}

func find(schedule []model.ScheduledExam, id string) int {
	for i, e := range schedule {
		if e.ID == id && e.Status != model.ExamRemoved {
			return i
		}
	}
	return -1
}

// Edit applies patch to a copy of the exam and returns it when it fits.
func (ed Editor) Edit(schedule []model.ScheduledExam, examID string, patch Patch) (model.ScheduledExam, error) {
	i := find(schedule, examID)
	if i < 0 {
		return model.ScheduledExam{}, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}
	e := schedule[i]
	if patch.Date != nil {
		e.Slot.Date = model.Day(*patch.Date)
	}
	if patch.Start != nil {
		e.Slot.Start = *patch.Start
	}
	if patch.End != nil {
		e.Slot.End = *patch.End
	}
	if patch.Room != nil {
		e.Slot.Room = *patch.Room
	}
	if patch.Sekretaris != nil {
		e.Panel.Sekretaris = *patch.Sekretaris
	}
	if patch.Anggota1 != nil {
		e.Panel.Anggota1 = *patch.Anggota1
	}
	if patch.Anggota2 != nil {
		e.Panel.Anggota2 = *patch.Anggota2
	}
	if err := ed.check(schedule, e); err != nil {
		return model.ScheduledExam{}, err
	}
	e.Status = model.ExamEdited
	e.UpdatedAt = ed.now()
	return e, nil
}

// Swap exchanges date, time and room of two exams. Both results are
// re-validated against the schedule with the swap applied.
func (ed Editor) Swap(schedule []model.ScheduledExam, idA, idB string) (model.ScheduledExam, model.ScheduledExam, error) {
	if idA == idB {
		return model.ScheduledExam{}, model.ScheduledExam{}, fmt.Errorf("%w: cannot swap an exam with itself", ErrInvalidPatch)
	}
	i, j := find(schedule, idA), find(schedule, idB)
	if i < 0 {
		return model.ScheduledExam{}, model.ScheduledExam{}, fmt.Errorf("exam %s: %w", idA, ErrNotFound)
	}
	if j < 0 {
		return model.ScheduledExam{}, model.ScheduledExam{}, fmt.Errorf("exam %s: %w", idB, ErrNotFound)
	}
	a, b := schedule[i], schedule[j]
	a.Slot, b.Slot = b.Slot, a.Slot
	next := append([]model.ScheduledExam(nil), schedule...)
	next[i], next[j] = a, b
	for _, e := range []model.ScheduledExam{a, b} {
		if err := ed.check(next, e); err != nil {
			return model.ScheduledExam{}, model.ScheduledExam{}, err
		}
	}
	now := ed.now()
	a.Status, b.Status = model.ExamEdited, model.ExamEdited
	a.UpdatedAt, b.UpdatedAt = now, now
	return a, b, nil
}

// check validates e against every other live entry of schedule.
func (ed Editor) check(schedule []model.ScheduledExam, e model.ScheduledExam) error {
	if e.Slot.End <= e.Slot.Start {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidPatch, e.Slot.End, e.Slot.Start)
	}
	if len(ed.Rooms) > 0 && !contains(ed.Rooms, e.Slot.Room) {
		return fmt.Errorf("%w: unknown room %q", ErrInvalidPatch, e.Slot.Room)
	}
	examiners := e.Panel.Examiners()
	seen := map[string]bool{}
	for _, id := range examiners {
		if id == "" {
			return fmt.Errorf("%w: examiner roles must be filled", ErrInvalidPatch)
		}
		if seen[id] {
			return fmt.Errorf("%w: lecturer %s holds two roles", ErrInvalidPatch, id)
		}
		if id == e.Panel.Ketua || id == e.Panel.Pembimbing2 {
			return fmt.Errorf("%w: supervisor %s cannot examine the same thesis", ErrInvalidPatch, id)
		}
		seen[id] = true
	}

	drawn := map[string]int{}
	for _, o := range schedule {
		if o.ID == e.ID || o.Status == model.ExamRemoved {
			continue
		}
		for _, id := range o.Panel.Examiners() {
			drawn[id]++
		}
		if !o.Slot.Overlaps(e.Slot) {
			continue
		}
		if o.Slot.Room == e.Slot.Room {
			return &EditConflict{Reason: RoomOccupied, ConflictingExamID: o.ID}
		}
		for _, id := range e.Panel.Members() {
			if id != "" && o.Panel.Has(id) {
				return &EditConflict{Reason: LecturerBusy, ConflictingExamID: o.ID, LecturerID: id}
			}
		}
	}
	if ed.MaxExamsPerExaminer > 0 {
		for _, id := range examiners {
			if drawn[id]+1 > ed.MaxExamsPerExaminer {
				return &EditConflict{Reason: CapacityExceeded, LecturerID: id}
			}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
