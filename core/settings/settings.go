// Package settings holds the typed scheduling settings value object and the
// parsers that turn stored key/value rows into it.
package settings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sita/sidang/core/model"
)

// MinSessionMinutes is the shortest defense session accepted.
const MinSessionMinutes = 30

// Window is an operating-hours interval within one day.
type Window struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

// Minutes returns the window length.
func (w Window) Minutes() int { return int(w.End - w.Start) }

// Break is a recurring pause inside a day.
type Break struct {
	Start           model.Clock `json:"start"`
	DurationMinutes int         `json:"duration_minutes"`
}

// End returns the first minute after the break.
func (b Break) End() model.Clock { return b.Start.Add(b.DurationMinutes) }

// SpecialDate is a one-off closed date.
type SpecialDate struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// DayOverride replaces the default operating hours for one weekday. Nil
// duration or gap inherit the defaults; Breaks replace the default breaks.
type DayOverride struct {
	Window                 Window  `json:"window"`
	SessionDurationMinutes *int    `json:"session_duration_minutes,omitempty"`
	GapMinutes             *int    `json:"gap_minutes,omitempty"`
	Breaks                 []Break `json:"breaks,omitempty"`
}

// SchedulingSettings is read-only input to one scheduling run.
type SchedulingSettings struct {
	OperatingHours         Window                       `json:"operating_hours"`
	SessionDurationMinutes int                          `json:"session_duration_minutes"`
	GapMinutes             int                          `json:"gap_minutes"`
	FixedHolidays          []time.Weekday               `json:"fixed_holidays"`
	SpecialDates           []SpecialDate                `json:"special_dates"`
	DayOverrides           map[time.Weekday]DayOverride `json:"day_overrides"`
	Breaks                 []Break                      `json:"breaks"`
	Rooms                  []string                     `json:"rooms"`
	MaxExamsPerExaminer    int                          `json:"max_exams_per_examiner"`
	// MaxActiveSupervisions caps how many candidates of one batch may share
	// a first supervisor. Defaults to 4; zero disables the check.
	MaxActiveSupervisions int `json:"max_active_supervisions"`
}

// Defaults returns the settings used when the store holds no value.
func Defaults() SchedulingSettings {
	return SchedulingSettings{
		OperatingHours:         Window{Start: model.NewClock(8, 0), End: model.NewClock(15, 0)},
		SessionDurationMinutes: 90,
		GapMinutes:             15,
		FixedHolidays:          []time.Weekday{time.Saturday, time.Sunday},
		DayOverrides:           map[time.Weekday]DayOverride{},
		MaxExamsPerExaminer:    4,
		MaxActiveSupervisions:  4,
	}
}

// DayPlan is the resolved session layout of one calendar day.
type DayPlan struct {
	Window   Window
	Duration int
	Gap      int
	Breaks   []Break
}

// IsHoliday reports whether no sessions may be held on date.
func (s SchedulingSettings) IsHoliday(date time.Time) bool {
	wd := date.Weekday()
	for _, h := range s.FixedHolidays {
		if h == wd {
			return true
		}
	}
	day := model.Day(date)
	for _, sd := range s.SpecialDates {
		if model.Day(sd.Date).Equal(day) {
			return true
		}
	}
	return false
}

// PlanFor resolves the operating layout for a weekday.
func (s SchedulingSettings) PlanFor(wd time.Weekday) DayPlan {
	p := DayPlan{
		Window:   s.OperatingHours,
		Duration: s.SessionDurationMinutes,
		Gap:      s.GapMinutes,
		Breaks:   s.Breaks,
	}
	if o, ok := s.DayOverrides[wd]; ok {
		p.Window = o.Window
		if o.SessionDurationMinutes != nil {
			p.Duration = *o.SessionDurationMinutes
		}
		if o.GapMinutes != nil {
			p.Gap = *o.GapMinutes
		}
		p.Breaks = o.Breaks
	}
	return p
}

// WorkingWeekdays returns the weekdays that are not fixed holidays.
func (s SchedulingSettings) WorkingWeekdays() []time.Weekday {
	closed := make(map[time.Weekday]bool, len(s.FixedHolidays))
	for _, h := range s.FixedHolidays {
		closed[h] = true
	}
	var out []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if !closed[wd] {
			out = append(out, wd)
		}
	}
	return out
}

// ConfigurationError reports settings that prevent a run from starting.
type ConfigurationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid scheduling settings: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the invariants every run depends on.
func (s SchedulingSettings) Validate() error {
	if s.SessionDurationMinutes < MinSessionMinutes {
		return configErr("session_duration_minutes", "must be at least %d, got %d", MinSessionMinutes, s.SessionDurationMinutes)
	}
	if s.GapMinutes < 0 {
		return configErr("gap_minutes", "must not be negative, got %d", s.GapMinutes)
	}
	if s.MaxExamsPerExaminer <= 0 {
		return configErr("max_exams_per_examiner", "must be positive, got %d", s.MaxExamsPerExaminer)
	}
	if s.MaxActiveSupervisions < 0 {
		return configErr("max_active_supervisions", "must not be negative, got %d", s.MaxActiveSupervisions)
	}
	if s.OperatingHours.End <= s.OperatingHours.Start {
		return configErr("operating_hours", "end %s must be after start %s", s.OperatingHours.End, s.OperatingHours.Start)
	}
	if len(s.Rooms) == 0 {
		return configErr("rooms", "at least one room is required")
	}
	seen := make(map[string]bool, len(s.Rooms))
	for _, r := range s.Rooms {
		name := strings.TrimSpace(r)
		if name == "" {
			return configErr("rooms", "room names must not be empty")
		}
		if seen[name] {
			return configErr("rooms", "duplicate room %q", name)
		}
		seen[name] = true
	}
	for _, b := range s.Breaks {
		if b.DurationMinutes <= 0 {
			return configErr("breaks", "break at %s must have a positive duration", b.Start)
		}
	}
	wds := make([]int, 0, len(s.DayOverrides))
	for wd := range s.DayOverrides {
		wds = append(wds, int(wd))
	}
	sort.Ints(wds)
	for _, w := range wds {
		wd := time.Weekday(w)
		o := s.DayOverrides[wd]
		field := "day_overrides." + strings.ToLower(wd.String())
		if o.Window.End <= o.Window.Start {
			return configErr(field, "end %s must be after start %s", o.Window.End, o.Window.Start)
		}
		if o.SessionDurationMinutes != nil && *o.SessionDurationMinutes < MinSessionMinutes {
			return configErr(field, "session duration must be at least %d", MinSessionMinutes)
		}
		if o.GapMinutes != nil && *o.GapMinutes < 0 {
			return configErr(field, "gap must not be negative")
		}
		for _, b := range o.Breaks {
			if b.DurationMinutes <= 0 {
				return configErr(field, "break at %s must have a positive duration", b.Start)
			}
		}
	}
	return nil
}
