package sidang

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/model"
)

func exam(id, room string, date time.Time, start int, panel model.PanelAssignment) model.ScheduledExam {
	return model.ScheduledExam{
		ID:          id,
		CandidateID: "C" + id,
		Slot:        model.TimeSlot{Date: date, Start: model.NewClock(start, 0), End: model.NewClock(start+1, 0), Room: room},
		Panel:       panel,
		Status:      model.ExamCommitted,
	}
}

func sampleSchedule() []model.ScheduledExam {
	return []model.ScheduledExam{
		exam("a", "R1", monday, 8, model.PanelAssignment{Ketua: "L1", Anggota1: "L3", Anggota2: "L4", Sekretaris: "L5"}),
		exam("b", "R2", monday, 8, model.PanelAssignment{Ketua: "L2", Anggota1: "L6", Anggota2: "L7", Sekretaris: "L8"}),
		exam("c", "R1", monday.AddDate(0, 0, 1), 10, model.PanelAssignment{Ketua: "L9", Anggota1: "L3", Anggota2: "L10", Sekretaris: "L11"}),
	}
}

func TestEditRoomConflict(t *testing.T) {
	sched := sampleSchedule()
	before := sched[1]
	room := "R1"
	_, err := Editor{}.Edit(sched, "b", Patch{Room: &room})
	var ec *EditConflict
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, RoomOccupied, ec.Reason)
	assert.Equal(t, "a", ec.ConflictingExamID)
	assert.Equal(t, before, sched[1])
}

func TestEditLecturerBusy(t *testing.T) {
	sched := sampleSchedule()
	l := "L4"
	_, err := Editor{}.Edit(sched, "b", Patch{Sekretaris: &l})
	var ec *EditConflict
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, LecturerBusy, ec.Reason)
	assert.Equal(t, "L4", ec.LecturerID)
	assert.Equal(t, "a", ec.ConflictingExamID)
}

func TestEditCapacity(t *testing.T) {
	sched := sampleSchedule()
	l := "L3"
	_, err := Editor{MaxExamsPerExaminer: 2}.Edit(sched, "b", Patch{Anggota1: &l, Date: ptr(monday.AddDate(0, 0, 2))})
	var ec *EditConflict
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, CapacityExceeded, ec.Reason)
}

func TestEditInvalidPatch(t *testing.T) {
	sched := sampleSchedule()
	sup := "L1"
	_, err := Editor{}.Edit(sched, "a", Patch{Sekretaris: &sup})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	dup := "L3"
	_, err = Editor{}.Edit(sched, "a", Patch{Anggota2: &dup})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	end := model.NewClock(7, 0)
	_, err = Editor{}.Edit(sched, "a", Patch{End: &end})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	room := "Aula"
	_, err = Editor{Rooms: []string{"R1", "R2"}}.Edit(sched, "a", Patch{Room: &room})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = Editor{}.Edit(sched, "zzz", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditSuccess(t *testing.T) {
	sched := sampleSchedule()
	now := time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)
	start, end := model.NewClock(9, 0), model.NewClock(10, 0)
	room := "R1"
	got, err := Editor{Now: func() time.Time { return now }}.Edit(sched, "b", Patch{Start: &start, End: &end, Room: &room})
	require.NoError(t, err)
	assert.Equal(t, model.ExamEdited, got.Status)
	assert.Equal(t, "09:00", got.Slot.Start.String())
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, model.ExamCommitted, sched[1].Status)
}

func TestSwap(t *testing.T) {
	sched := sampleSchedule()
	a, c, err := Editor{}.Swap(sched, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, sched[2].Slot, a.Slot)
	assert.Equal(t, sched[0].Slot, c.Slot)

	// c shares L3 with a, so it cannot take b's monday slot.
	_, _, err = Editor{}.Swap(sched, "b", "c")
	var ec *EditConflict
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, LecturerBusy, ec.Reason)
	assert.Equal(t, "a", ec.ConflictingExamID)

	_, _, err = Editor{}.Swap(sched, "a", "a")
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func ptr[T any](v T) *T { return &v }
