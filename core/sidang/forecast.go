package sidang

import (
	"fmt"
	"time"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
)

// LongRunWarningDays is the estimated span above which a forecast warns.
const LongRunWarningDays = 60

// Preflight rejects batches that cannot possibly be scheduled before any
// greedy work is done.
func Preflight(s settings.SchedulingSettings, candidates int) error {
	if candidates == 0 {
		return ErrNoCandidates
	}
	working := s.WorkingWeekdays()
	if len(working) == 0 {
		return &ConfigurationError{Field: "fixed_holidays", Reason: "every weekday is a holiday"}
	}
	for _, wd := range working {
		if p := s.PlanFor(wd); p.Window.Minutes() >= p.Duration {
			return nil
		}
	}
	return &ConfigurationError{
		Field:  "operating_hours",
		Reason: fmt.Sprintf("no working day fits a %d minute session", s.SessionDurationMinutes),
	}
}

// Forecast summarises how long a batch will take before it is run.
type Forecast struct {
	Candidates         int            `json:"candidates"`
	Rooms              int            `json:"rooms"`
	SessionsPerDay     map[string]int `json:"sessions_per_day"`
	WorkingDaysPerWeek int            `json:"working_days_per_week"`
	SlotsPerWeek       int            `json:"slots_per_week"`
	EstimatedDays      int            `json:"estimated_working_days"`
	EstimatedWeeks     int            `json:"estimated_weeks"`
	SeatsNeeded        int            `json:"seats_needed"`
	SeatsAvailable     int            `json:"seats_available"`
	Feasible           bool           `json:"feasible"`
	Warnings           []string       `json:"warnings,omitempty"`
}

// BuildForecast estimates the working days a batch needs. It validates the
// settings and runs the same pre-checks as the allocator.
func BuildForecast(s settings.SchedulingSettings, candidates []model.Candidate, pool model.ExaminerPool) (Forecast, error) {
	if err := s.Validate(); err != nil {
		return Forecast{}, err
	}
	if err := Preflight(s, len(candidates)); err != nil {
		return Forecast{}, err
	}
	f := Forecast{
		Candidates:     len(candidates),
		Rooms:          len(s.Rooms),
		SessionsPerDay: map[string]int{},
		SeatsNeeded:    len(candidates) * ExaminersPerPanel,
	}
	// Count sessions on a reference week; holidays by date do not apply.
	ref := s
	ref.SpecialDates = nil
	monday := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		d := monday.AddDate(0, 0, i)
		n := len(Sessions(ref, d))
		if n == 0 {
			continue
		}
		f.SessionsPerDay[d.Weekday().String()] = n
		f.WorkingDaysPerWeek++
		f.SlotsPerWeek += n * len(s.Rooms)
	}
	if f.SlotsPerWeek > 0 {
		f.EstimatedDays = ceilDiv(len(candidates)*f.WorkingDaysPerWeek, f.SlotsPerWeek)
		f.EstimatedWeeks = ceilDiv(len(candidates), f.SlotsPerWeek)
	}

	tracker := NewLoadTracker(pool, s.MaxExamsPerExaminer)
	eligible := eligibleForBatch(candidates, tracker)
	f.SeatsAvailable = tracker.TotalRemaining(func(id string) bool { return eligible[id] })
	f.Feasible = f.SlotsPerWeek > 0 && f.SeatsAvailable >= f.SeatsNeeded

	if f.SeatsAvailable < f.SeatsNeeded {
		f.Warnings = append(f.Warnings, "examiner seats: "+shortfall(f.SeatsNeeded, f.SeatsAvailable))
	}
	if f.EstimatedDays > LongRunWarningDays {
		f.Warnings = append(f.Warnings, fmt.Sprintf("estimated %d working days exceeds %d", f.EstimatedDays, LongRunWarningDays))
	}
	if f.SlotsPerWeek == 0 {
		f.Warnings = append(f.Warnings, "no session fits in any working day")
	}
	return f, nil
}
