package model

import (
	"fmt"
	"time"
)

// TimeSlot is one bookable session in one room.
type TimeSlot struct {
	Date  time.Time `json:"date"`
	Start Clock     `json:"start"`
	End   Clock     `json:"end"`
	Room  string    `json:"room"`
}

// Key identifies the slot uniquely within a schedule.
func (s TimeSlot) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.Date.Format(DateLayout), s.Start, s.End, s.Room)
}

// Overlaps reports whether both slots share a date and their [start,end)
// windows intersect. Rooms are ignored.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	if !Day(s.Date).Equal(Day(o.Date)) {
		return false
	}
	return s.Start < o.End && o.Start < s.End
}

// Collides reports whether both slots overlap in the same room.
func (s TimeSlot) Collides(o TimeSlot) bool {
	return s.Room == o.Room && s.Overlaps(o)
}

// String returns a compact human readable form.
func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s %s", s.Date.Format(DateLayout), s.Start, s.End, s.Room)
}
