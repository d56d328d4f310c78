package sidang

import (
	"time"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
)

// DefaultHorizonDays bounds how far ahead the calendar looks for slots.
const DefaultHorizonDays = 365

// Session is one [Start, End) window of a day before rooms are applied.
type Session struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

// Sessions carves the operating window of date into consecutive sessions.
// A session that would overlap a break is dropped and carving resumes at
// the end of that break. Holidays yield no sessions.
func Sessions(s settings.SchedulingSettings, date time.Time) []Session {
	if s.IsHoliday(date) {
		return nil
	}
	p := s.PlanFor(date.Weekday())
	if p.Duration <= 0 {
		return nil
	}
	var out []Session
	t := p.Window.Start
	for t.Add(p.Duration) <= p.Window.End {
		end := t.Add(p.Duration)
		if b, ok := overlappingBreak(p.Breaks, t, end); ok {
			t = b.End()
			continue
		}
		out = append(out, Session{Start: t, End: end})
		t = end.Add(p.Gap)
	}
	return out
}

func overlappingBreak(breaks []settings.Break, start, end model.Clock) (settings.Break, bool) {
	for _, b := range breaks {
		if start < b.End() && b.Start < end {
			return b, true
		}
	}
	return settings.Break{}, false
}

// SlotsOn returns every bookable slot of one day ordered by start then
// configured room order.
func SlotsOn(s settings.SchedulingSettings, date time.Time) []model.TimeSlot {
	day := model.Day(date)
	sessions := Sessions(s, day)
	out := make([]model.TimeSlot, 0, len(sessions)*len(s.Rooms))
	for _, ss := range sessions {
		for _, room := range s.Rooms {
			out = append(out, model.TimeSlot{Date: day, Start: ss.Start, End: ss.End, Room: room})
		}
	}
	return out
}

// Calendar lazily yields slots ordered by (date, start, room) from a start
// date up to a bounded horizon. Reset restarts the walk; the sequence only
// depends on the settings and the start date.
type Calendar struct {
	settings settings.SchedulingSettings
	from     time.Time
	horizon  int

	offset  int
	pending []model.TimeSlot
}

// NewCalendar returns a calendar starting at from. A non-positive horizon
// uses DefaultHorizonDays.
func NewCalendar(s settings.SchedulingSettings, from time.Time, horizonDays int) *Calendar {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Calendar{settings: s, from: model.Day(from), horizon: horizonDays}
}

// Next returns the next slot, or false once the horizon is exhausted.
func (c *Calendar) Next() (model.TimeSlot, bool) {
	for len(c.pending) == 0 {
		if c.offset >= c.horizon {
			return model.TimeSlot{}, false
		}
		c.pending = SlotsOn(c.settings, c.from.AddDate(0, 0, c.offset))
		c.offset++
	}
	slot := c.pending[0]
	c.pending = c.pending[1:]
	return slot, true
}

// From returns the first date considered.
func (c *Calendar) From() time.Time { return c.from }

// HorizonDays returns the number of calendar days walked.
func (c *Calendar) HorizonDays() int { return c.horizon }

// Capacity counts the slots available within the horizon.
func (c *Calendar) Capacity() int {
	n := 0
	for i := 0; i < c.horizon; i++ {
		n += len(Sessions(c.settings, c.from.AddDate(0, 0, i))) * len(c.settings.Rooms)
	}
	return n
}
