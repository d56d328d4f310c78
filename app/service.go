package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/journal"
	"github.com/sita/sidang/core/logger"
	coremetrics "github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/internal/eventbus"
)

// Options tune generation runs.
type Options struct {
	HorizonDays     int
	StartOffsetDays int
	Mapping         sidang.RoleMapping
	Location        *time.Location
	// LockTTL is how long a writer's lease on the schedule lasts.
	LockTTL time.Duration
}

// DefaultLockTTL applies when Options.LockTTL is unset.
const DefaultLockTTL = 10 * time.Minute

// Deps are the collaborators of a Service. Store is required.
type Deps struct {
	Store   store.Store
	Journal journal.Store
	Sink    coremetrics.MetricsSink
	Bus     *eventbus.Bus[events.ScheduleEvent]
	Log     logger.Logger
	Now     func() time.Time
}

// Service owns the persisted schedule. Every mutation holds the store's
// schedule lease; a second writer, in this process or another one sharing
// the database, is rejected with ErrLockContention instead of waiting.
type Service struct {
	store   store.Store
	journal journal.Store
	sink    coremetrics.MetricsSink
	bus     *eventbus.Bus[events.ScheduleEvent]
	log     logger.Logger
	now     func() time.Time
	opts    Options
	owner   string

	mu sync.Mutex
}

// GenerateResult is a committed run.
type GenerateResult struct {
	RunID string                `json:"run_id"`
	Exams []model.ScheduledExam `json:"exams"`
	Load  sidang.LoadStats      `json:"load"`
}

// DeleteResult reports a bulk deletion.
type DeleteResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// EditOptions feed the edit forms.
type EditOptions struct {
	Lecturers   model.ExaminerPool `json:"lecturers"`
	Rooms       []string           `json:"rooms"`
	RoleMapping sidang.RoleMapping `json:"role_mapping"`
}

// NewService builds a Service. Missing optional deps get no-op defaults.
func NewService(d Deps, opts Options) *Service {
	if d.Journal == nil {
		d.Journal = journal.NopStore{}
	}
	if d.Sink == nil {
		d.Sink = coremetrics.NopSink{}
	}
	if d.Bus == nil {
		d.Bus = eventbus.New[events.ScheduleEvent](eventbus.DefaultBuffer)
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = sidang.DefaultHorizonDays
	}
	if opts.Mapping == "" {
		opts.Mapping = sidang.DrawThirdIsSekretaris
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Service{
		store:   d.Store,
		journal: d.Journal,
		sink:    d.Sink,
		bus:     d.Bus,
		log:     d.Log,
		now:     d.Now,
		opts:    opts,
		owner:   uuid.NewString(),
	}
}

// Bus exposes the event bus for subscribers such as the notifier.
func (s *Service) Bus() *eventbus.Bus[events.ScheduleEvent] { return s.bus }

// lock takes the in-process mutex, then the store lease. Both are held
// until unlock.
func (s *Service) lock(ctx context.Context) error {
	if !s.mu.TryLock() {
		return sidang.ErrLockContention
	}
	if err := s.store.AcquireLock(ctx, s.owner, s.now(), s.opts.LockTTL); err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Service) unlock(ctx context.Context) {
	if err := s.store.ReleaseLock(context.WithoutCancel(ctx), s.owner); err != nil {
		s.log.Errorf("release schedule lock: %v", err)
	}
	s.mu.Unlock()
}

// StartDate is the first date a run may place an exam on.
func (s *Service) StartDate() time.Time {
	today := s.now().In(s.opts.Location)
	d := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, s.opts.StartOffsetDays)
}

func (s *Service) publish(ev events.ScheduleEvent) {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.bus.Publish(ev)
}

// Generate runs the allocator over every eligible candidate and commits
// the result, or commits nothing and returns the reason.
func (s *Service) Generate(ctx context.Context, source journal.Source) (GenerateResult, error) {
	if err := s.lock(ctx); err != nil {
		return GenerateResult{}, err
	}
	defer s.unlock(ctx)
	return s.generate(ctx, source)
}

type runInput struct {
	settings   settings.SchedulingSettings
	candidates []model.Candidate
	pool       model.ExaminerPool
	existing   []model.ScheduledExam
}

// loadInput reads every collaborator once at the start of a run. Settings
// are validated before rooms named in them are synced to the room directory.
func (s *Service) loadInput(ctx context.Context) (runInput, error) {
	var in runInput
	cfg, err := s.store.SchedulingSettings(ctx)
	if err != nil {
		return in, err
	}
	if err := cfg.Validate(); err != nil {
		return in, err
	}
	if len(cfg.Rooms) > 0 {
		if err := s.store.SyncRooms(ctx, cfg.Rooms); err != nil {
			return in, fmt.Errorf("sync rooms: %w", err)
		}
	}
	if cfg.Rooms, err = s.store.ListRooms(ctx); err != nil {
		return in, fmt.Errorf("list rooms: %w", err)
	}
	in.settings = cfg
	if in.candidates, err = s.store.ListCandidates(ctx); err != nil {
		return in, fmt.Errorf("list candidates: %w", err)
	}
	if in.pool, err = s.store.ListLecturersWithCurrentLoad(ctx); err != nil {
		return in, fmt.Errorf("list lecturers: %w", err)
	}
	if in.existing, err = s.store.ListSchedule(ctx); err != nil {
		return in, fmt.Errorf("list schedule: %w", err)
	}
	return in, nil
}

func (s *Service) generate(ctx context.Context, source journal.Source) (GenerateResult, error) {
	runID := uuid.NewString()
	started := s.now()
	log := s.log
	if wl, ok := s.log.(interface {
		With(string, any) logger.Logger
	}); ok {
		log = wl.With("run_id", runID)
	}

	rec := journal.RunRecord{RunID: runID, Timestamp: started, Source: source}
	in, err := s.loadInput(ctx)
	if err != nil {
		return GenerateResult{}, s.finishFailed(ctx, rec, in, started, err)
	}
	rec.Candidates = len(in.candidates)
	log.Infof("run started: %d candidates, %d lecturers, %d rooms", len(in.candidates), len(in.pool), len(in.settings.Rooms))

	alloc := &sidang.Allocator{
		Assigner:    sidang.PanelAssigner{Mapping: s.opts.Mapping},
		HorizonDays: s.opts.HorizonDays,
		Log:         log,
	}
	exams, err := alloc.Run(sidang.Request{
		Candidates: in.candidates,
		Settings:   in.settings,
		Pool:       in.pool,
		StartDate:  s.StartDate(),
		Existing:   in.existing,
	})
	if err != nil {
		return GenerateResult{}, s.finishFailed(ctx, rec, in, started, err)
	}

	now := s.now()
	for i := range exams {
		exams[i].Status = model.ExamCommitted
		exams[i].UpdatedAt = now
	}
	t, err := s.store.Trigger(ctx)
	if err != nil {
		return GenerateResult{}, s.finishFailed(ctx, rec, in, started, err)
	}
	if err := s.store.CommitRun(ctx, exams, t.Complete(now)); err != nil {
		return GenerateResult{}, s.finishFailed(ctx, rec, in, started, fmt.Errorf("commit run: %w", err))
	}

	load := sidang.LoadSpread(in.pool, append(slices.Clone(in.existing), exams...))
	rec.Outcome = journal.OutcomeSuccess
	rec.Scheduled = len(exams)
	rec.Load = &load
	s.finish(ctx, rec, started)

	ids := make([]string, len(exams))
	for i, e := range exams {
		ids[i] = e.ID
	}
	s.publish(events.ScheduleEvent{Kind: events.Generated, RunID: runID, ExamIDs: ids, Count: len(exams), Duration: now.Sub(started)})
	log.Infof("run committed: %d exams, load mean %.2f stddev %.2f max %.0f", len(exams), load.Mean, load.StdDev, load.Max)
	return GenerateResult{RunID: runID, Exams: exams, Load: load}, nil
}

// finishFailed journals a failed run and returns err unchanged.
func (s *Service) finishFailed(ctx context.Context, rec journal.RunRecord, in runInput, started time.Time, err error) error {
	rec.Outcome = journal.OutcomeError
	rec.Error = err.Error()
	var sf *sidang.SchedulingFailure
	var ce *sidang.ConfigurationError
	switch {
	case errors.As(err, &sf):
		rec.Outcome = journal.OutcomeFailure
		rec.Failure = sf
	case errors.As(err, &ce), errors.Is(err, sidang.ErrNoCandidates):
		rec.Outcome = journal.OutcomeFailure
	}
	if rec.Outcome == journal.OutcomeError {
		s.log.Errorf("run %s: %v", rec.RunID, err)
	} else {
		s.log.Warnf("run %s not scheduled: %v", rec.RunID, err)
	}
	s.finish(ctx, rec, started)
	ev := events.ScheduleEvent{Kind: events.GenerationFailed, RunID: rec.RunID, Count: len(in.candidates), Reason: err.Error()}
	if sf != nil {
		ev.Reason = string(sf.Kind)
		ev.Detail = sf.Computation
	}
	s.publish(ev)
	return err
}

func (s *Service) finish(ctx context.Context, rec journal.RunRecord, started time.Time) {
	elapsed := s.now().Sub(started)
	rec.DurationMs = elapsed.Milliseconds()
	if err := s.journal.Append(ctx, rec); err != nil {
		s.log.Errorf("journal append: %v", err)
	}
	res := coremetrics.RunResult{
		RunID:      rec.RunID,
		Source:     string(rec.Source),
		Outcome:    string(rec.Outcome),
		Candidates: rec.Candidates,
		Scheduled:  rec.Scheduled,
		Duration:   elapsed,
		Time:       rec.Timestamp,
	}
	if rec.Failure != nil {
		res.FailureKind = string(rec.Failure.Kind)
	}
	if rec.Load != nil {
		res.LoadMean, res.LoadStdDev, res.LoadMax = rec.Load.Mean, rec.Load.StdDev, rec.Load.Max
	}
	if err := s.sink.RecordRun(res); err != nil {
		s.log.Errorf("metrics: %v", err)
	}
}

// Candidates lists the candidates the next run would place.
func (s *Service) Candidates(ctx context.Context) ([]model.Candidate, error) {
	return s.store.ListCandidates(ctx)
}

// Schedule lists the active exams.
func (s *Service) Schedule(ctx context.Context) ([]model.ScheduledExam, error) {
	return s.listExams(ctx, true)
}

// Removed lists exams taken off the schedule, each with its reason.
func (s *Service) Removed(ctx context.Context) ([]model.ScheduledExam, error) {
	return s.listExams(ctx, false)
}

func (s *Service) listExams(ctx context.Context, active bool) ([]model.ScheduledExam, error) {
	all, err := s.store.ListSchedule(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduledExam, 0, len(all))
	for _, e := range all {
		if e.Active() == active {
			out = append(out, e)
		}
	}
	return out, nil
}

// Forecast estimates how long the next run would take to place every
// eligible candidate and flags blockers without committing anything.
func (s *Service) Forecast(ctx context.Context) (sidang.Forecast, error) {
	in, err := s.loadInput(ctx)
	if err != nil {
		return sidang.Forecast{}, err
	}
	return sidang.BuildForecast(in.settings, in.candidates, in.pool)
}

// Runs queries the run journal.
func (s *Service) Runs(ctx context.Context, q journal.RunQuery) ([]journal.RunRecord, error) {
	return s.journal.Query(ctx, q)
}

// Options returns the choices offered when editing an exam.
func (s *Service) Options(ctx context.Context) (EditOptions, error) {
	pool, err := s.store.ListLecturersWithCurrentLoad(ctx)
	if err != nil {
		return EditOptions{}, err
	}
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return EditOptions{}, err
	}
	return EditOptions{Lecturers: pool, Rooms: rooms, RoleMapping: s.opts.Mapping}, nil
}

func (s *Service) editor(ctx context.Context) (sidang.Editor, error) {
	cfg, err := s.store.SchedulingSettings(ctx)
	if err != nil {
		return sidang.Editor{}, err
	}
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return sidang.Editor{}, err
	}
	if len(rooms) == 0 {
		rooms = cfg.Rooms
	}
	return sidang.Editor{MaxExamsPerExaminer: cfg.MaxExamsPerExaminer, Rooms: rooms, Now: s.now}, nil
}

// Edit patches one exam after re-validating it against the schedule.
func (s *Service) Edit(ctx context.Context, id string, patch sidang.Patch) (model.ScheduledExam, error) {
	if err := s.lock(ctx); err != nil {
		return model.ScheduledExam{}, err
	}
	defer s.unlock(ctx)

	sched, err := s.store.ListSchedule(ctx)
	if err != nil {
		return model.ScheduledExam{}, err
	}
	ed, err := s.editor(ctx)
	if err != nil {
		return model.ScheduledExam{}, err
	}
	updated, err := ed.Edit(sched, id, patch)
	if err != nil {
		return model.ScheduledExam{}, err
	}
	if err := s.store.UpdateExams(ctx, []model.ScheduledExam{updated}); err != nil {
		return model.ScheduledExam{}, err
	}
	s.publish(events.ScheduleEvent{Kind: events.Edited, ExamIDs: []string{id}, Count: 1, Detail: updated.Slot.String()})
	return updated, nil
}

// Swap exchanges the slots of two exams.
func (s *Service) Swap(ctx context.Context, idA, idB string) ([]model.ScheduledExam, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock(ctx)

	sched, err := s.store.ListSchedule(ctx)
	if err != nil {
		return nil, err
	}
	ed, err := s.editor(ctx)
	if err != nil {
		return nil, err
	}
	a, b, err := ed.Swap(sched, idA, idB)
	if err != nil {
		return nil, err
	}
	out := []model.ScheduledExam{a, b}
	if err := s.store.UpdateExams(ctx, out); err != nil {
		return nil, err
	}
	s.publish(events.ScheduleEvent{Kind: events.Swapped, ExamIDs: []string{idA, idB}, Count: 2})
	return out, nil
}

// MoveAll shifts every exam dated on or after from so that from lands on
// to, and returns the updated active schedule. ErrNotFound means nothing
// was dated on or after from.
func (s *Service) MoveAll(ctx context.Context, from, to time.Time) ([]model.ScheduledExam, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock(ctx)

	sched, err := s.store.ListSchedule(ctx)
	if err != nil {
		return nil, err
	}
	out, moved, err := sidang.MoveAll(sched, from, to)
	if err != nil {
		return nil, err
	}
	if moved == 0 {
		return nil, fmt.Errorf("%w: no exams on or after %s", sidang.ErrNotFound, from.Format(model.DateLayout))
	}
	now := s.now()
	changed := make([]model.ScheduledExam, 0, moved)
	ids := make([]string, 0, moved)
	for i := range out {
		if out[i].Slot.Date.Equal(sched[i].Slot.Date) {
			continue
		}
		out[i].UpdatedAt = now
		changed = append(changed, out[i])
		ids = append(ids, out[i].ID)
	}
	if err := s.store.UpdateExams(ctx, changed); err != nil {
		return nil, err
	}
	s.publish(events.ScheduleEvent{
		Kind:    events.Moved,
		ExamIDs: ids,
		Count:   moved,
		Detail:  fmt.Sprintf("%s -> %s", model.Day(from).Format(model.DateLayout), model.Day(to).Format(model.DateLayout)),
	})
	return slices.DeleteFunc(out, func(e model.ScheduledExam) bool { return !e.Active() }), nil
}

// Delete takes one exam off the schedule. The row stays with status removed
// and the reason; its slot and panel seats are freed and the candidate is
// not offered to later runs.
func (s *Service) Delete(ctx context.Context, id, reason string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock(ctx)
	if err := s.store.RemoveExam(ctx, id, reason, s.now()); err != nil {
		return err
	}
	s.publish(events.ScheduleEvent{Kind: events.Deleted, ExamIDs: []string{id}, Count: 1, Reason: reason})
	return nil
}

// DeleteAll removes the whole schedule and resets the trigger so a new run
// can be armed.
func (s *Service) DeleteAll(ctx context.Context) (DeleteResult, error) {
	if err := s.lock(ctx); err != nil {
		return DeleteResult{}, err
	}
	defer s.unlock(ctx)
	t, err := s.store.Trigger(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	n, err := s.store.DeleteAll(ctx, t.Reset(s.now()))
	if err != nil {
		return DeleteResult{}, err
	}
	s.publish(events.ScheduleEvent{Kind: events.Cleared, Count: n})
	return DeleteResult{Deleted: n}, nil
}
