package sidang

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sita/sidang/core/logger"
	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
)

var examNamespace = uuid.MustParse("6f1c2d8e-4b7a-5e39-9a51-0d3c7b2e8f14")

// ExamID derives a stable exam id from the candidate and its slot.
func ExamID(candidateID string, slot model.TimeSlot) string {
	return uuid.NewSHA1(examNamespace, []byte(candidateID+"|"+slot.Key())).String()
}

// Request is the full input of one allocation run.
type Request struct {
	Candidates []model.Candidate
	Settings   settings.SchedulingSettings
	Pool       model.ExaminerPool
	StartDate  time.Time
	// Existing holds exams already committed; their slots are taken and
	// their panels are busy for overlapping windows.
	Existing []model.ScheduledExam
}

// Allocator places every candidate of a batch or reports why it cannot.
type Allocator struct {
	Assigner    PanelAssigner
	HorizonDays int
	Log         logger.Logger
}

// NewAllocator returns an allocator with the default role mapping and horizon.
func NewAllocator(log logger.Logger) *Allocator {
	return &Allocator{Assigner: PanelAssigner{Mapping: DrawThirdIsSekretaris}, HorizonDays: DefaultHorizonDays, Log: log}
}

func (a *Allocator) log() logger.Logger {
	if a.Log == nil {
		return logger.NopLogger{}
	}
	return a.Log
}

// Run allocates a slot and panel to every candidate. It either returns one
// proposed exam per candidate ordered by slot, or an error: a
// *ConfigurationError, ErrNoCandidates, or a *SchedulingFailure. Nothing is
// partially placed.
func (a *Allocator) Run(req Request) ([]model.ScheduledExam, error) {
	s := req.Settings
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := Preflight(s, len(req.Candidates)); err != nil {
		return nil, err
	}
	if f := checkSupervisorLoad(req.Candidates, s.MaxActiveSupervisions); f != nil {
		return nil, f
	}

	candidates := orderCandidates(req.Candidates)
	tracker := NewLoadTracker(req.Pool, s.MaxExamsPerExaminer)
	d := deficits{
		candidates:  len(candidates),
		seatsNeeded: len(candidates) * ExaminersPerPanel,
		maxQuota:    tracker.Max(),
	}
	eligible := eligibleForBatch(candidates, tracker)
	d.eligible = len(eligible)
	d.seatsHave = tracker.TotalRemaining(func(id string) bool { return eligible[id] })
	d.minimalQuota = minimalQuota(tracker, eligible, d.seatsNeeded)

	cal := NewCalendar(s, req.StartDate, a.HorizonDays)
	d.horizonDays = cal.HorizonDays()
	board := newBoard(cal, req.Existing)

	placed := make([]model.ScheduledExam, 0, len(candidates))
	for _, c := range candidates {
		panel, err := a.Assigner.Assign(c, tracker)
		if err != nil {
			var pf *PanelAssignmentFailure
			if !errors.As(err, &pf) {
				return nil, err
			}
			a.log().Debugw("panel assignment failed", map[string]any{"candidate": c.ID, "eligible": pf.Eligible})
			d.panelFailed = append(d.panelFailed, c.ID)
			continue
		}
		if err := reserveAll(tracker, panel.Examiners()); err != nil {
			return nil, err
		}
		slot, ok := board.take(panel)
		if !ok {
			for _, id := range panel.Examiners() {
				_ = tracker.Release(id)
			}
			d.slotFailed = append(d.slotFailed, c.ID)
			continue
		}
		exam := model.ScheduledExam{
			ID:          ExamID(c.ID, slot),
			CandidateID: c.ID,
			ThesisID:    c.ThesisID,
			Slot:        slot,
			Panel:       panel,
			Status:      model.ExamProposed,
		}
		board.occupy(exam)
		placed = append(placed, exam)
	}

	if len(d.panelFailed) > 0 || len(d.slotFailed) > 0 {
		tracker.Rollback()
		d.sessionsHave = cal.Capacity() - board.existingInHorizon
		f := d.failure()
		a.log().Warnf("scheduling run failed: %s", f.Error())
		return nil, f
	}
	SortExams(placed, s.Rooms)
	a.log().Infof("scheduled %d candidates from %s", len(placed), cal.From().Format(model.DateLayout))
	return placed, nil
}

func reserveAll(t *LoadTracker, ids []string) error {
	for i, id := range ids {
		if err := t.Reserve(id); err != nil {
			for _, done := range ids[:i] {
				_ = t.Release(done)
			}
			return fmt.Errorf("reserve examiner: %w", err)
		}
	}
	return nil
}

// orderCandidates sorts by submission time then id without touching the
// caller's slice.
func orderCandidates(in []model.Candidate) []model.Candidate {
	out := append([]model.Candidate(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// eligibleForBatch returns lecturers who may examine at least one candidate.
func eligibleForBatch(cs []model.Candidate, t *LoadTracker) map[string]bool {
	out := make(map[string]bool)
	for _, id := range t.ids {
		for _, c := range cs {
			if !c.IsSupervisor(id) {
				out[id] = true
				break
			}
		}
	}
	return out
}

// minimalQuota is the smallest ceiling under which the eligible lecturers
// could cover the needed seats given their current load.
func minimalQuota(t *LoadTracker, eligible map[string]bool, needed int) int {
	if len(eligible) == 0 {
		return 0
	}
	var loads []int
	for _, id := range t.ids {
		if eligible[id] {
			loads = append(loads, t.Load(id))
		}
	}
	for q := 1; ; q++ {
		total := 0
		for _, l := range loads {
			if q > l {
				total += q - l
			}
		}
		if total >= needed {
			return q
		}
	}
}

func checkSupervisorLoad(cs []model.Candidate, limit int) *SchedulingFailure {
	if limit <= 0 {
		return nil
	}
	counts := map[string]int{}
	for _, c := range cs {
		counts[c.Supervisor1ID]++
	}
	var over []SupervisorCount
	excess := 0
	for id, n := range counts {
		if n > limit {
			over = append(over, SupervisorCount{LecturerID: id, Count: n})
			excess += n - limit
		}
	}
	if len(over) == 0 {
		return nil
	}
	sort.Slice(over, func(i, j int) bool { return over[i].LecturerID < over[j].LecturerID })
	return &SchedulingFailure{
		Kind: SupervisorOverload,
		Computation: fmt.Sprintf("%d supervisors exceed %d active supervisions, %d candidates over the limit",
			len(over), limit, excess),
		Suggestion: "reassign first supervisors or raise max_pembimbing_aktif",
		Detail:     map[string]int{"limit": limit, "supervisors_over": len(over), "excess": excess},
		Overloaded: over,
	}
}

// SortExams orders exams by date, start and configured room order.
func SortExams(exams []model.ScheduledExam, rooms []string) {
	idx := make(map[string]int, len(rooms))
	for i, r := range rooms {
		idx[r] = i
	}
	rank := func(r string) int {
		if i, ok := idx[r]; ok {
			return i
		}
		return len(rooms)
	}
	sort.SliceStable(exams, func(i, j int) bool {
		a, b := exams[i].Slot, exams[j].Slot
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if ra, rb := rank(a.Room), rank(b.Room); ra != rb {
			return ra < rb
		}
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		return exams[i].ID < exams[j].ID
	})
}
