package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/journal"
	coremetrics "github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/core/trigger"
	"github.com/sita/sidang/infra/store/sqlite"
)

// sunday evening before the first working day
var sunday = time.Date(2025, 8, 31, 18, 0, 0, 0, time.UTC)

var monday = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu   sync.Mutex
	runs []coremetrics.RunResult
}

func (r *recordingSink) RecordRun(res coremetrics.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	return nil
}

type harness struct {
	svc    *Service
	store  store.Store
	sink   *recordingSink
	clock  *clock
	sub    <-chan events.ScheduleEvent
	dbPath string
}

func newHarness(t *testing.T, kv map[settings.Key]string) *harness {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sidang.db")
	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	j, err := journal.NewJSONLStore(filepath.Join(dir, "runs.jsonl"), 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	base := map[settings.Key]string{
		settings.KeySessionDuration:     "60",
		settings.KeyGap:                 "0",
		settings.KeyStart:               "08:00",
		settings.KeyEnd:                 "10:00",
		settings.KeyRooms:               `["R1","R2"]`,
		settings.KeyMaxExamsPerExaminer: "4",
	}
	for k, v := range kv {
		base[k] = v
	}
	for k, v := range base {
		require.NoError(t, st.PutSetting(ctx, k, v))
	}
	for _, id := range []string{"L1", "L2", "L3", "L4", "L5"} {
		require.NoError(t, st.PutLecturer(ctx, model.Lecturer{ID: id, Name: "Dr " + id}, true))
	}
	for i, c := range []struct{ id, sup string }{{"C1", "L1"}, {"C2", "L2"}} {
		require.NoError(t, st.PutCandidate(ctx, model.Candidate{
			ID: c.id, ThesisID: "T" + c.id, Title: "Thesis " + c.id, Supervisor1ID: c.sup,
			SubmittedAt: monday.AddDate(0, -1, i),
		}, true))
	}

	clk := &clock{t: sunday}
	sink := &recordingSink{}
	svc := NewService(Deps{Store: st, Journal: j, Sink: sink, Now: clk.Now}, Options{StartOffsetDays: 1})
	return &harness{svc: svc, store: st, sink: sink, clock: clk, sub: svc.Bus().Subscribe(), dbPath: dbPath}
}

func (h *harness) event(t *testing.T) events.ScheduleEvent {
	t.Helper()
	select {
	case ev := <-h.sub:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
	return events.ScheduleEvent{}
}

func TestGenerateCommits(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.svc.Generate(ctx, journal.SourceManual)
	require.NoError(t, err)
	require.Len(t, res.Exams, 2)
	assert.NotEmpty(t, res.RunID)

	first := res.Exams[0]
	assert.Equal(t, "C1", first.CandidateID)
	assert.True(t, first.Slot.Date.Equal(monday))
	assert.Equal(t, "08:00", first.Slot.Start.String())
	assert.Equal(t, "R1", first.Slot.Room)
	assert.Equal(t, model.PanelAssignment{Ketua: "L1", Anggota1: "L2", Anggota2: "L3", Sekretaris: "L4"}, first.Panel)
	assert.Equal(t, "09:00", res.Exams[1].Slot.Start.String())

	stored, err := h.store.ListSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, e := range stored {
		assert.Equal(t, model.ExamCommitted, e.Status)
	}
	tr, err := h.store.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.Done, tr.State)

	left, err := h.svc.Candidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	runs, err := h.svc.Runs(ctx, journal.RunQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.OutcomeSuccess, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].Scheduled)
	require.NotNil(t, runs[0].Load)
	assert.Equal(t, 5, runs[0].Load.Lecturers)

	require.Len(t, h.sink.runs, 1)
	assert.Equal(t, "success", h.sink.runs[0].Outcome)
	assert.Equal(t, "manual", h.sink.runs[0].Source)

	ev := h.event(t)
	assert.Equal(t, events.Generated, ev.Kind)
	assert.Equal(t, 2, ev.Count)
	assert.Equal(t, res.RunID, ev.RunID)
}

func TestGenerateFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, map[settings.Key]string{settings.KeyMaxExamsPerExaminer: "1"})
	ctx := context.Background()

	_, err := h.svc.Generate(ctx, journal.SourceManual)
	var sf *sidang.SchedulingFailure
	require.True(t, errors.As(err, &sf), "got %v", err)
	assert.Equal(t, sidang.InsufficientExaminerCapacity, sf.Kind)
	assert.Contains(t, sf.Computation, "6 needed vs 5 available, shortfall 1")

	stored, err := h.store.ListSchedule(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	runs, err := h.svc.Runs(ctx, journal.RunQuery{Outcome: journal.OutcomeFailure})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Failure)
	assert.Equal(t, sidang.InsufficientExaminerCapacity, runs[0].Failure.Kind)
	assert.Equal(t, "InsufficientExaminerCapacity", h.sink.runs[0].FailureKind)

	ev := h.event(t)
	assert.Equal(t, events.GenerationFailed, ev.Kind)
	assert.Equal(t, string(sidang.InsufficientExaminerCapacity), ev.Reason)
}

func TestGenerateConfigurationError(t *testing.T) {
	h := newHarness(t, map[settings.Key]string{settings.KeySessionDuration: "20"})
	_, err := h.svc.Generate(context.Background(), journal.SourceCLI)
	var ce *sidang.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "session_duration_minutes", ce.Field)
}

func TestGenerateLockContention(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()

	_, err := h.svc.Generate(context.Background(), journal.SourceManual)
	assert.True(t, errors.Is(err, sidang.ErrLockContention))
	_, err = h.svc.Edit(context.Background(), "x", sidang.Patch{})
	assert.True(t, errors.Is(err, sidang.ErrLockContention))
	_, err = h.svc.ScheduleTrigger(context.Background(), sunday.Add(time.Hour))
	assert.True(t, errors.Is(err, sidang.ErrLockContention))

	ran, err := h.svc.PollTrigger(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran)
}

func TestGenerateRejectsDuplicateRooms(t *testing.T) {
	h := newHarness(t, map[settings.Key]string{settings.KeyRooms: `["R1","R1"]`})
	ctx := context.Background()

	_, err := h.svc.Generate(ctx, journal.SourceManual)
	var ce *sidang.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "rooms", ce.Field)

	// nothing is synced or committed
	rooms, err := h.store.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	stored, err := h.store.ListSchedule(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, err = h.svc.Forecast(ctx)
	assert.True(t, errors.As(err, &ce))
}

func TestLockSharedAcrossProcesses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// a second process opening the same database
	other, err := sqlite.Open(h.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	peer := NewService(Deps{Store: other, Now: h.clock.Now}, Options{StartOffsetDays: 1, LockTTL: time.Minute})

	require.NoError(t, h.svc.lock(ctx))
	_, err = peer.Generate(ctx, journal.SourceCLI)
	assert.True(t, errors.Is(err, sidang.ErrLockContention), "got %v", err)
	_, err = peer.ScheduleTrigger(ctx, sunday.Add(time.Hour))
	assert.True(t, errors.Is(err, sidang.ErrLockContention), "got %v", err)
	assert.True(t, errors.Is(peer.Delete(ctx, "x", ""), sidang.ErrLockContention))
	ran, err := peer.PollTrigger(ctx)
	assert.NoError(t, err)
	assert.False(t, ran)

	h.svc.unlock(ctx)
	res, err := peer.Generate(ctx, journal.SourceCLI)
	require.NoError(t, err)
	assert.Len(t, res.Exams, 2)

	// the peer released its lease when the run ended
	require.NoError(t, h.svc.lock(ctx))
	h.svc.unlock(ctx)
}

func TestLockLeaseExpires(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// a writer that crashed without releasing its lease
	require.NoError(t, h.store.AcquireLock(ctx, "crashed", h.clock.Now(), time.Minute))
	_, err := h.svc.Generate(ctx, journal.SourceManual)
	assert.True(t, errors.Is(err, sidang.ErrLockContention), "got %v", err)

	h.clock.Advance(2 * time.Minute)
	res, err := h.svc.Generate(ctx, journal.SourceManual)
	require.NoError(t, err)
	assert.Len(t, res.Exams, 2)
}

func TestTriggerLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.CancelTrigger(ctx)
	assert.True(t, errors.Is(err, trigger.ErrInvalidTrigger))

	_, err = h.svc.ScheduleTrigger(ctx, sunday.Add(-time.Minute))
	assert.True(t, errors.Is(err, trigger.ErrInvalidTrigger))

	tr, err := h.svc.ScheduleTrigger(ctx, sunday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, trigger.Scheduled, tr.State)
	assert.Equal(t, events.TriggerChanged, h.event(t).Kind)

	ran, err := h.svc.PollTrigger(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	h.clock.Advance(2 * time.Hour)
	ran, err = h.svc.PollTrigger(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	tr, err = h.svc.TriggerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.Done, tr.State)
	stored, err := h.svc.Schedule(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	runs, err := h.svc.Runs(ctx, journal.RunQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.SourceTrigger, runs[0].Source)
}

func TestPollTriggerFailureResetsTrigger(t *testing.T) {
	h := newHarness(t, map[settings.Key]string{settings.KeyMaxExamsPerExaminer: "1"})
	ctx := context.Background()

	_, err := h.svc.ScheduleTrigger(ctx, sunday.Add(time.Minute))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	ran, err := h.svc.PollTrigger(ctx)
	assert.True(t, ran)
	var sf *sidang.SchedulingFailure
	require.True(t, errors.As(err, &sf))

	tr, err := h.svc.TriggerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, tr.State)
	assert.Contains(t, tr.LastError, "InsufficientExaminerCapacity")

	tr, err = h.svc.ScheduleTrigger(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, trigger.Scheduled, tr.State)
	tr, err = h.svc.CancelTrigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, tr.State)
}

func generated(t *testing.T, h *harness) []model.ScheduledExam {
	t.Helper()
	res, err := h.svc.Generate(context.Background(), journal.SourceManual)
	require.NoError(t, err)
	h.event(t)
	return res.Exams
}

func TestEditSwapMove(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	exams := generated(t, h)
	a, b := exams[0], exams[1]

	room := "R2"
	edited, err := h.svc.Edit(ctx, b.ID, sidang.Patch{Room: &room})
	require.NoError(t, err)
	assert.Equal(t, model.ExamEdited, edited.Status)
	assert.Equal(t, "R2", edited.Slot.Room)
	assert.Equal(t, events.Edited, h.event(t).Kind)

	start, end := a.Slot.Start, a.Slot.End
	_, err = h.svc.Edit(ctx, b.ID, sidang.Patch{Start: &start, End: &end})
	var ec *sidang.EditConflict
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, sidang.LecturerBusy, ec.Reason)
	assert.Equal(t, a.ID, ec.ConflictingExamID)

	bogus := "R9"
	_, err = h.svc.Edit(ctx, b.ID, sidang.Patch{Room: &bogus})
	assert.True(t, errors.Is(err, sidang.ErrInvalidPatch))

	swapped, err := h.svc.Swap(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, swapped, 2)
	assert.Equal(t, "09:00", swapped[0].Slot.Start.String())
	assert.Equal(t, "R2", swapped[0].Slot.Room)
	assert.Equal(t, events.Swapped, h.event(t).Kind)

	wednesday := monday.AddDate(0, 0, 2)
	out, err := h.svc.MoveAll(ctx, monday, wednesday)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, e := range out {
		assert.True(t, e.Slot.Date.Equal(wednesday))
	}
	ev := h.event(t)
	assert.Equal(t, events.Moved, ev.Kind)
	assert.Equal(t, 2, ev.Count)

	stored, err := h.svc.Schedule(ctx)
	require.NoError(t, err)
	for _, e := range stored {
		assert.True(t, e.Slot.Date.Equal(wednesday))
	}

	_, err = h.svc.MoveAll(ctx, wednesday, monday)
	assert.True(t, errors.Is(err, sidang.ErrInvalidRange))
	_, err = h.svc.MoveAll(ctx, wednesday.AddDate(0, 0, 1), wednesday.AddDate(0, 0, 3))
	assert.True(t, errors.Is(err, sidang.ErrNotFound))
}

func TestDeleteAndDeleteAll(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	exams := generated(t, h)

	h.clock.Advance(time.Hour)
	require.NoError(t, h.svc.Delete(ctx, exams[0].ID, "withdrawn"))
	ev := h.event(t)
	assert.Equal(t, events.Deleted, ev.Kind)
	assert.Equal(t, "withdrawn", ev.Reason)
	assert.True(t, errors.Is(h.svc.Delete(ctx, exams[0].ID, ""), sidang.ErrNotFound))

	active, err := h.svc.Schedule(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, exams[1].ID, active[0].ID)

	removed, err := h.svc.Removed(ctx)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, exams[0].ID, removed[0].ID)
	assert.Equal(t, model.ExamRemoved, removed[0].Status)
	assert.Equal(t, "withdrawn", removed[0].RemovalReason)
	assert.True(t, removed[0].UpdatedAt.Equal(h.clock.Now()))

	// a removed candidate is not offered again
	cands, err := h.svc.Candidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, cands)

	res, err := h.svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Deleted: 2}, res)
	tr, err := h.svc.TriggerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.NotScheduled, tr.State)
	assert.Equal(t, events.Cleared, h.event(t).Kind)
	removed, err = h.svc.Removed(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRemovedExamFreesSlotForNextRun(t *testing.T) {
	h := newHarness(t, map[settings.Key]string{settings.KeyRooms: `["R1"]`})
	ctx := context.Background()
	exams := generated(t, h)
	require.Len(t, exams, 2)
	first := exams[0]
	assert.Equal(t, model.NewClock(8, 0), first.Slot.Start)

	require.NoError(t, h.svc.Delete(ctx, first.ID, "gagal sidang"))
	h.event(t)
	require.NoError(t, h.store.PutCandidate(ctx, model.Candidate{
		ID: "C3", ThesisID: "TC3", Title: "Thesis C3", Supervisor1ID: "L3",
		SubmittedAt: monday.AddDate(0, 0, -7),
	}, true))

	res, err := h.svc.Generate(ctx, journal.SourceManual)
	require.NoError(t, err)
	require.Len(t, res.Exams, 1)
	assert.Equal(t, "C3", res.Exams[0].CandidateID)
	assert.Equal(t, first.Slot.Key(), res.Exams[0].Slot.Key())

	active, err := h.svc.Schedule(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, e := range active {
		assert.NotEqual(t, first.CandidateID, e.CandidateID)
	}
}

func TestForecastAndOptions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	f, err := h.svc.Forecast(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Candidates)
	assert.Equal(t, 2, f.Rooms)
	assert.Equal(t, 6, f.SeatsNeeded)
	assert.True(t, f.Feasible)

	opts, err := h.svc.Options(ctx)
	require.NoError(t, err)
	assert.Len(t, opts.Lecturers, 5)
	assert.Equal(t, []string{"R1", "R2"}, opts.Rooms)
	assert.Equal(t, sidang.DrawThirdIsSekretaris, opts.RoleMapping)
}

func TestStartDateUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	svc := NewService(Deps{Now: func() time.Time { return sunday }}, Options{StartOffsetDays: 1, Location: jakarta})
	// 18:00 UTC is already Monday 01:00 in Jakarta
	assert.True(t, svc.StartDate().Equal(monday.AddDate(0, 0, 1)))
}
