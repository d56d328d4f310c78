package sidang

import "github.com/sita/sidang/core/model"

// board tracks which calendar slots are taken and who is busy when.
type board struct {
	cal      *Calendar
	slots    []model.TimeSlot
	consumed []bool
	first    int
	done     bool

	occupied          []model.ScheduledExam
	existingInHorizon int
}

func newBoard(cal *Calendar, existing []model.ScheduledExam) *board {
	b := &board{cal: cal}
	end := cal.From().AddDate(0, 0, cal.HorizonDays())
	for _, e := range existing {
		if e.Status == model.ExamRemoved {
			continue
		}
		b.occupied = append(b.occupied, e)
		d := model.Day(e.Slot.Date)
		if !d.Before(cal.From()) && d.Before(end) {
			b.existingInHorizon++
		}
	}
	return b
}

func (b *board) slot(i int) (model.TimeSlot, bool) {
	for i >= len(b.slots) {
		if b.done {
			return model.TimeSlot{}, false
		}
		s, ok := b.cal.Next()
		if !ok {
			b.done = true
			return model.TimeSlot{}, false
		}
		b.slots = append(b.slots, s)
		b.consumed = append(b.consumed, false)
	}
	return b.slots[i], true
}

// take consumes the earliest free slot where the room is empty and no
// member of panel sits on another overlapping exam.
func (b *board) take(panel model.PanelAssignment) (model.TimeSlot, bool) {
	for i := b.first; ; i++ {
		s, ok := b.slot(i)
		if !ok {
			return model.TimeSlot{}, false
		}
		if b.consumed[i] {
			continue
		}
		if b.blocked(s, panel) {
			continue
		}
		b.consumed[i] = true
		for b.first < len(b.consumed) && b.consumed[b.first] {
			b.first++
		}
		return s, true
	}
}

func (b *board) blocked(s model.TimeSlot, panel model.PanelAssignment) bool {
	for _, e := range b.occupied {
		if !e.Slot.Overlaps(s) {
			continue
		}
		if e.Slot.Room == s.Room || sharesMember(e.Panel, panel) {
			return true
		}
	}
	return false
}

func (b *board) occupy(e model.ScheduledExam) {
	b.occupied = append(b.occupied, e)
}

func sharesMember(a, b model.PanelAssignment) bool {
	for _, id := range a.Members() {
		if id != "" && b.Has(id) {
			return true
		}
	}
	return false
}
