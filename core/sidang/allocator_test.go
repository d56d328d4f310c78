package sidang

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
)

func pool(n int) model.ExaminerPool {
	p := make(model.ExaminerPool, n)
	for i := range p {
		p[i] = model.Lecturer{ID: fmt.Sprintf("L%d", i+1)}
	}
	return p
}

func candidate(id, sup1, sup2 string, offset int) model.Candidate {
	return model.Candidate{
		ID:            id,
		ThesisID:      "T" + id,
		Title:         "Thesis " + id,
		Supervisor1ID: sup1,
		Supervisor2ID: sup2,
		SubmittedAt:   monday.AddDate(0, -1, 0).Add(time.Duration(offset) * time.Hour),
	}
}

func TestRunTwoCandidatesOneRoom(t *testing.T) {
	s := baseSettings()
	req := Request{
		Candidates: []model.Candidate{candidate("C2", "L1", "L2", 1), candidate("C1", "L1", "L2", 0)},
		Settings:   s,
		Pool:       pool(5),
		StartDate:  monday,
	}
	exams, err := NewAllocator(nil).Run(req)
	require.NoError(t, err)
	require.Len(t, exams, 2)

	assert.Equal(t, "C1", exams[0].CandidateID)
	assert.True(t, exams[0].Slot.Date.Equal(monday))
	assert.Equal(t, model.NewClock(8, 0), exams[0].Slot.Start)
	assert.Equal(t, model.NewClock(9, 0), exams[1].Slot.Start)
	for _, e := range exams {
		assert.Equal(t, "L1", e.Panel.Ketua)
		assert.Equal(t, "L2", e.Panel.Pembimbing2)
		assert.ElementsMatch(t, []string{"L3", "L4", "L5"}, e.Panel.Examiners())
		assert.Equal(t, "L5", e.Panel.Sekretaris)
		assert.Equal(t, model.ExamProposed, e.Status)
	}
	for id, n := range DrawnCounts(exams) {
		assert.LessOrEqual(t, n, s.MaxExamsPerExaminer, id)
	}
}

func TestRunInsufficientExaminers(t *testing.T) {
	var cs []model.Candidate
	for i := 0; i < 10; i++ {
		cs = append(cs, candidate(fmt.Sprintf("C%02d", i), "L1", "L2", i))
	}
	req := Request{Candidates: cs, Settings: baseSettings(), Pool: pool(5), StartDate: monday}
	exams, err := NewAllocator(nil).Run(req)
	require.Error(t, err)
	assert.Empty(t, exams)

	var f *SchedulingFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, InsufficientExaminerCapacity, f.Kind)
	assert.Contains(t, f.Computation, "30 needed vs 12 available, shortfall 18")
	assert.Equal(t, 6, f.Detail["panel_failures"])
	assert.Equal(t, 3, f.Detail["eligible_lecturers"])
	assert.Len(t, f.Unplaced, 6)
	assert.Contains(t, f.Suggestion, "at least 10")
}

func TestRunRoomTimeShortage(t *testing.T) {
	var cs []model.Candidate
	for i := 0; i < 5; i++ {
		cs = append(cs, candidate(fmt.Sprintf("C%d", i), "L1", "", i))
	}
	s := baseSettings()
	s.MaxExamsPerExaminer = 10
	a := NewAllocator(nil)
	a.HorizonDays = 2
	_, err := a.Run(Request{Candidates: cs, Settings: s, Pool: pool(9), StartDate: monday})
	var f *SchedulingFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, InsufficientRoomTimeCapacity, f.Kind)
	assert.Contains(t, f.Computation, "5 needed vs 4 available, shortfall 1")
	assert.Equal(t, 1, f.Detail["slot_failures"])
}

func TestRunConfigurationErrors(t *testing.T) {
	s := baseSettings()
	s.Rooms = nil
	_, err := NewAllocator(nil).Run(Request{Candidates: []model.Candidate{candidate("C1", "L1", "", 0)}, Settings: s, Pool: pool(5)})
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "rooms", ce.Field)

	s = baseSettings()
	s.FixedHolidays = []time.Weekday{0, 1, 2, 3, 4, 5, 6}
	_, err = NewAllocator(nil).Run(Request{Candidates: []model.Candidate{candidate("C1", "L1", "", 0)}, Settings: s, Pool: pool(5)})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "fixed_holidays", ce.Field)

	s = baseSettings()
	s.SessionDurationMinutes = 180
	_, err = NewAllocator(nil).Run(Request{Candidates: []model.Candidate{candidate("C1", "L1", "", 0)}, Settings: s, Pool: pool(5)})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "operating_hours", ce.Field)

	_, err = NewAllocator(nil).Run(Request{Settings: baseSettings(), Pool: pool(5)})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRunSupervisorOverload(t *testing.T) {
	s := baseSettings()
	s.MaxActiveSupervisions = 1
	cs := []model.Candidate{candidate("C1", "L1", "", 0), candidate("C2", "L1", "", 1), candidate("C3", "L2", "", 2)}
	_, err := NewAllocator(nil).Run(Request{Candidates: cs, Settings: s, Pool: pool(6), StartDate: monday})
	var f *SchedulingFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, SupervisorOverload, f.Kind)
	require.Len(t, f.Overloaded, 1)
	assert.Equal(t, SupervisorCount{LecturerID: "L1", Count: 2}, f.Overloaded[0])
}

func TestRunRespectsExistingSchedule(t *testing.T) {
	s := baseSettings()
	existing := []model.ScheduledExam{{
		ID:     "old",
		Slot:   model.TimeSlot{Date: monday, Start: model.NewClock(8, 0), End: model.NewClock(9, 0), Room: "R1"},
		Panel:  model.PanelAssignment{Ketua: "L9", Anggota1: "L3", Anggota2: "L4", Sekretaris: "L5"},
		Status: model.ExamCommitted,
	}}
	exams, err := NewAllocator(nil).Run(Request{
		Candidates: []model.Candidate{candidate("C1", "L1", "L2", 0)},
		Settings:   s,
		Pool:       pool(5),
		StartDate:  monday,
		Existing:   existing,
	})
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, model.NewClock(9, 0), exams[0].Slot.Start)
}

func TestRunBusyLecturerMovesToLaterSlot(t *testing.T) {
	s := baseSettings()
	s.Rooms = []string{"R1", "R2"}
	// Both candidates share a first supervisor, so they cannot run in parallel.
	cs := []model.Candidate{candidate("C1", "L1", "", 0), candidate("C2", "L1", "", 1)}
	exams, err := NewAllocator(nil).Run(Request{Candidates: cs, Settings: s, Pool: pool(8), StartDate: monday})
	require.NoError(t, err)
	require.Len(t, exams, 2)
	assert.Equal(t, model.NewClock(8, 0), exams[0].Slot.Start)
	assert.Equal(t, model.NewClock(9, 0), exams[1].Slot.Start)
	assert.Equal(t, "R1", exams[1].Slot.Room)
}

func TestRunProperties(t *testing.T) {
	s := baseSettings()
	s.Rooms = []string{"R1", "R2", "R3"}
	s.OperatingHours = settings.Window{Start: model.NewClock(8, 0), End: model.NewClock(15, 0)}
	s.GapMinutes = 15
	s.Breaks = []settings.Break{{Start: model.NewClock(12, 0), DurationMinutes: 60}}
	s.MaxExamsPerExaminer = 5
	var cs []model.Candidate
	for i := 0; i < 24; i++ {
		cs = append(cs, candidate(fmt.Sprintf("C%02d", i), fmt.Sprintf("L%d", i%6+1), fmt.Sprintf("L%d", (i+3)%12+1), 24-i))
	}
	p := pool(18)
	p[4].Load = 2
	req := Request{Candidates: cs, Settings: s, Pool: p, StartDate: monday}

	exams, err := NewAllocator(nil).Run(req)
	require.NoError(t, err)
	require.Len(t, exams, len(cs))

	sup := map[string]model.Candidate{}
	for _, c := range cs {
		sup[c.ID] = c
	}
	for i := range exams {
		a := exams[i]
		c := sup[a.CandidateID]
		for _, id := range a.Panel.Examiners() {
			assert.False(t, c.IsSupervisor(id), "supervisor %s examines %s", id, c.ID)
		}
		for j := i + 1; j < len(exams); j++ {
			b := exams[j]
			if !a.Slot.Overlaps(b.Slot) {
				continue
			}
			assert.NotEqual(t, a.Slot.Room, b.Slot.Room, "room double booked: %s %s", a.ID, b.ID)
			assert.False(t, sharesMember(a.Panel, b.Panel), "lecturer double booked: %s %s", a.ID, b.ID)
		}
	}
	counts := DrawnCounts(exams)
	for _, l := range p {
		assert.LessOrEqual(t, counts[l.ID]+l.Load, s.MaxExamsPerExaminer, l.ID)
	}

	again, err := NewAllocator(nil).Run(req)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(exams, again), "runs must be deterministic")
}

func TestRunDoesNotMutateInput(t *testing.T) {
	cs := []model.Candidate{candidate("C2", "L1", "", 1), candidate("C1", "L1", "", 0)}
	p := pool(5)
	_, err := NewAllocator(nil).Run(Request{Candidates: cs, Settings: baseSettings(), Pool: p, StartDate: monday})
	require.NoError(t, err)
	assert.Equal(t, "C2", cs[0].ID)
	assert.Zero(t, p[2].Load)
}

func TestRoleMapping(t *testing.T) {
	tr := NewLoadTracker(pool(5), 4)
	c := candidate("C1", "L1", "L2", 0)
	p, err := PanelAssigner{Mapping: DrawFirstIsSekretaris}.Assign(c, tr)
	require.NoError(t, err)
	assert.Equal(t, "L3", p.Sekretaris)
	assert.Equal(t, "L4", p.Anggota1)

	m, err := ParseRoleMapping("")
	require.NoError(t, err)
	assert.Equal(t, DrawThirdIsSekretaris, m)
	_, err = ParseRoleMapping("ketua")
	assert.Error(t, err)
}

func TestPanelAssignerLeastLoaded(t *testing.T) {
	p := pool(6)
	p[2].Load = 3
	tr := NewLoadTracker(p, 4)
	panel, err := PanelAssigner{}.Assign(candidate("C1", "L1", "", 0), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"L2", "L4", "L5"}, panel.Examiners())

	require.NoError(t, tr.Reserve("L3"))
	panel, err = PanelAssigner{}.Assign(candidate("C2", "L2", "L4", 0), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L5", "L6"}, panel.Examiners())

	_, err = PanelAssigner{}.Assign(candidate("C3", "L1", "", 0), NewLoadTracker(pool(3), 4))
	var pf *PanelAssignmentFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, 2, pf.Eligible)
	assert.True(t, strings.Contains(pf.Error(), "C3"))
}
