// Package storetest runs the same behavioural checks against every
// store.Store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/core/trigger"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

var monday = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

// Exam builds a committed exam for candidate id on monday+day at hour.
func Exam(id string, day, hour int, room string, panel model.PanelAssignment) model.ScheduledExam {
	return model.ScheduledExam{
		ID:          "E" + id,
		CandidateID: id,
		ThesisID:    "T" + id,
		Slot: model.TimeSlot{
			Date:  monday.AddDate(0, 0, day),
			Start: model.NewClock(hour, 0),
			End:   model.NewClock(hour+1, 0),
			Room:  room,
		},
		Panel:     panel,
		Status:    model.ExamCommitted,
		UpdatedAt: monday,
	}
}

// Seed fills s with four lecturers, two rooms and three ready candidates.
func Seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"L1", "L2", "L3", "L4", "L5"} {
		require.NoError(t, s.PutLecturer(ctx, model.Lecturer{ID: id, Name: "Dr " + id}, true))
	}
	require.NoError(t, s.PutLecturer(ctx, model.Lecturer{ID: "L9", Name: "Retired"}, false))
	require.NoError(t, s.SyncRooms(ctx, []string{"R2", "R1"}))
	for i, id := range []string{"C1", "C2", "C3"} {
		c := model.Candidate{
			ID:            id,
			ThesisID:      "T" + id,
			Title:         "Thesis " + id,
			Supervisor1ID: "L1",
			SubmittedAt:   monday.Add(time.Duration(3-i) * time.Hour),
		}
		require.NoError(t, s.PutCandidate(ctx, c, true))
	}
	require.NoError(t, s.PutCandidate(ctx, model.Candidate{ID: "C9", ThesisID: "T9", Title: "draft", Supervisor1ID: "L2", SubmittedAt: monday}, false))
}

// Run executes every check against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Settings", testSettings},
		{"Rooms", testRooms},
		{"CandidatesAndLoad", testCandidatesAndLoad},
		{"CommitAndList", testCommitAndList},
		{"UpdateExams", testUpdateExams},
		{"RemoveExam", testRemoveExam},
		{"DeleteAll", testDeleteAll},
		{"Trigger", testTrigger},
		{"Lock", testLock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()
	got, err := s.SchedulingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults().SessionDurationMinutes, got.SessionDurationMinutes)

	require.NoError(t, s.PutSetting(ctx, settings.KeySessionDuration, "60"))
	require.NoError(t, s.PutSetting(ctx, settings.KeySessionDuration, "45"))
	require.NoError(t, s.PutSetting(ctx, settings.KeyRooms, `["A","B"]`))
	got, err = s.SchedulingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, got.SessionDurationMinutes)
	assert.Equal(t, []string{"A", "B"}, got.Rooms)

	err = s.PutSetting(ctx, "colour", "blue")
	assert.True(t, errors.Is(err, store.ErrUnknownSetting))

	require.NoError(t, s.SyncRooms(ctx, []string{"R9"}))
	require.NoError(t, s.PutSetting(ctx, settings.KeyRooms, ""))
	got, err = s.SchedulingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"R9"}, got.Rooms)

	require.NoError(t, s.PutSetting(ctx, settings.KeySessionDuration, "ninety"))
	_, err = s.SchedulingSettings(ctx)
	var ce *settings.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func testRooms(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SyncRooms(ctx, []string{"R3", "R1", "R2"}))
	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"R3", "R1", "R2"}, rooms)

	require.NoError(t, s.SyncRooms(ctx, []string{"R2"}))
	rooms, err = s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"R2"}, rooms)
}

func testCandidatesAndLoad(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s)
	cs, err := s.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 3)
	assert.Equal(t, []string{"C3", "C2", "C1"}, []string{cs[0].ID, cs[1].ID, cs[2].ID})
	assert.True(t, cs[0].SubmittedAt.Equal(monday.Add(time.Hour)))

	require.NoError(t, s.CommitRun(ctx, []model.ScheduledExam{
		Exam("C1", 0, 8, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"}),
	}, trigger.Trigger{State: trigger.Done, UpdatedAt: monday}))

	cs, err = s.ListCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, cs, 2)

	pool, err := s.ListLecturersWithCurrentLoad(ctx)
	require.NoError(t, err)
	loads := map[string]int{}
	for _, l := range pool {
		loads[l.ID] = l.Load
	}
	assert.Equal(t, map[string]int{"L1": 0, "L2": 1, "L3": 1, "L4": 1, "L5": 0}, loads)
}

func testCommitAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s)
	e1 := Exam("C1", 1, 8, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4", Pembimbing2: "L5"})
	e2 := Exam("C2", 0, 9, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"})
	e3 := Exam("C3", 0, 9, "R2", model.PanelAssignment{Ketua: "L5", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"})
	runAt := monday.Add(-time.Hour)
	require.NoError(t, s.CommitRun(ctx, []model.ScheduledExam{e1, e2, e3}, trigger.Trigger{State: trigger.Done, RunAt: &runAt, UpdatedAt: monday}))

	got, err := s.ListSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// rooms were synced as R2, R1
	assert.Equal(t, []string{"EC3", "EC2", "EC1"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, e1.Panel, got[2].Panel)
	assert.Equal(t, e1.Slot.Key(), got[2].Slot.Key())
	assert.True(t, e1.UpdatedAt.Equal(got[2].UpdatedAt))

	tr, err := s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.Done, tr.State)
	require.NotNil(t, tr.RunAt)
	assert.True(t, tr.RunAt.Equal(runAt))

	// a duplicate id rolls back the whole batch and leaves the trigger alone
	err = s.CommitRun(ctx, []model.ScheduledExam{
		Exam("C9", 3, 8, "R1", model.PanelAssignment{Ketua: "L2", Anggota1: "L3", Anggota2: "L4", Sekretaris: "L5"}),
		e1,
	}, trigger.Trigger{State: trigger.NotScheduled, UpdatedAt: monday})
	require.Error(t, err)
	got, err = s.ListSchedule(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	tr, err = s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.Done, tr.State)
}

func testUpdateExams(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s)
	e1 := Exam("C1", 0, 8, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"})
	require.NoError(t, s.CommitRun(ctx, []model.ScheduledExam{e1}, trigger.Trigger{State: trigger.Done, UpdatedAt: monday}))

	moved := e1
	moved.Slot.Date = monday.AddDate(0, 0, 7)
	moved.Slot.Room = "R2"
	moved.Panel.Sekretaris = "L5"
	moved.Status = model.ExamEdited
	moved.UpdatedAt = monday.Add(time.Hour)
	require.NoError(t, s.UpdateExams(ctx, []model.ScheduledExam{moved}))

	got, err := s.ListSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, moved.Slot.Key(), got[0].Slot.Key())
	assert.Equal(t, model.ExamEdited, got[0].Status)
	assert.Equal(t, "L5", got[0].Panel.Sekretaris)

	ghost := Exam("C2", 0, 8, "R1", e1.Panel)
	again := moved
	again.Slot.Room = "R1"
	err = s.UpdateExams(ctx, []model.ScheduledExam{again, ghost})
	assert.True(t, errors.Is(err, store.ErrNotFound))
	got, err = s.ListSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R2", got[0].Slot.Room)
}

func testRemoveExam(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s)
	e1 := Exam("C1", 0, 8, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"})
	require.NoError(t, s.CommitRun(ctx, []model.ScheduledExam{e1}, trigger.Trigger{State: trigger.Done, UpdatedAt: monday}))

	at := monday.Add(time.Hour)
	require.NoError(t, s.RemoveExam(ctx, e1.ID, "did not attend", at))
	assert.True(t, errors.Is(s.RemoveExam(ctx, e1.ID, "again", at), store.ErrNotFound))
	assert.True(t, errors.Is(s.RemoveExam(ctx, "missing", "x", at), store.ErrNotFound))

	got, err := s.ListSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ExamRemoved, got[0].Status)
	assert.Equal(t, "did not attend", got[0].RemovalReason)
	assert.True(t, got[0].UpdatedAt.Equal(at))

	// the seats are released but the candidate is not offered again
	pool, err := s.ListLecturersWithCurrentLoad(ctx)
	require.NoError(t, err)
	for _, l := range pool {
		assert.Zero(t, l.Load, l.ID)
	}
	cs, err := s.ListCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, cs, 2)
	for _, c := range cs {
		assert.NotEqual(t, "C1", c.ID)
	}
}

func testDeleteAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s)
	require.NoError(t, s.CommitRun(ctx, []model.ScheduledExam{
		Exam("C1", 0, 8, "R1", model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"}),
		Exam("C2", 0, 8, "R2", model.PanelAssignment{Ketua: "L5", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"}),
	}, trigger.Trigger{State: trigger.Done, UpdatedAt: monday}))

	n, err := s.DeleteAll(ctx, trigger.Trigger{State: trigger.NotScheduled, UpdatedAt: monday.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := s.ListSchedule(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	tr, err := s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, tr.State)
}

func testTrigger(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr, err := s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, tr.State)
	assert.Nil(t, tr.RunAt)

	armed, err := tr.Schedule(monday.Add(2*time.Hour), monday)
	require.NoError(t, err)
	require.NoError(t, s.SaveTrigger(ctx, armed))
	got, err := s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.Scheduled, got.State)
	require.NotNil(t, got.RunAt)
	assert.True(t, got.RunAt.Equal(monday.Add(2*time.Hour)))

	failed := got.Fail(monday.Add(3*time.Hour), errors.New("boom"))
	require.NoError(t, s.SaveTrigger(ctx, failed))
	got, err = s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, got.State)
	assert.Equal(t, "boom", got.LastError)
}

func testLock(t *testing.T, s store.Store) {
	ctx := context.Background()
	ttl := 10 * time.Minute
	require.NoError(t, s.AcquireLock(ctx, "a", monday, ttl))
	// renewing your own lease is allowed
	require.NoError(t, s.AcquireLock(ctx, "a", monday.Add(time.Minute), ttl))
	assert.True(t, errors.Is(s.AcquireLock(ctx, "b", monday.Add(2*time.Minute), ttl), store.ErrLockContention))

	// a release by a non-owner leaves the lease alone
	require.NoError(t, s.ReleaseLock(ctx, "b"))
	assert.True(t, errors.Is(s.AcquireLock(ctx, "b", monday.Add(3*time.Minute), ttl), store.ErrLockContention))

	require.NoError(t, s.ReleaseLock(ctx, "a"))
	require.NoError(t, s.AcquireLock(ctx, "b", monday.Add(4*time.Minute), ttl))

	// an expired lease can be taken over
	require.NoError(t, s.AcquireLock(ctx, "c", monday.Add(time.Hour), ttl))
	assert.True(t, errors.Is(s.AcquireLock(ctx, "b", monday.Add(time.Hour+time.Minute), ttl), store.ErrLockContention))
}
