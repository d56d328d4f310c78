package sidang

import (
	"fmt"
	"sort"

	"github.com/sita/sidang/core/model"
)

// LoadTracker keeps per-lecturer examining counts for one run. It is built
// from a snapshot of the pool and never re-reads external state.
type LoadTracker struct {
	max      int
	ids      []string
	names    map[string]string
	load     map[string]int
	reserved map[string]int
}

// NewLoadTracker snapshots the pool. maxPerExaminer is the workload ceiling.
func NewLoadTracker(pool model.ExaminerPool, maxPerExaminer int) *LoadTracker {
	t := &LoadTracker{
		max:      maxPerExaminer,
		names:    make(map[string]string, len(pool)),
		load:     make(map[string]int, len(pool)),
		reserved: make(map[string]int, len(pool)),
	}
	for _, l := range pool {
		if _, dup := t.load[l.ID]; !dup {
			t.ids = append(t.ids, l.ID)
		}
		t.names[l.ID] = l.Name
		t.load[l.ID] = l.Load
	}
	sort.Strings(t.ids)
	return t
}

// Max returns the workload ceiling.
func (t *LoadTracker) Max() int { return t.max }

// IDs returns every tracked lecturer id in ascending order.
func (t *LoadTracker) IDs() []string {
	return append([]string(nil), t.ids...)
}

// Known reports whether the lecturer is part of the pool.
func (t *LoadTracker) Known(id string) bool {
	_, ok := t.load[id]
	return ok
}

// Load returns the current count including reservations of this run.
func (t *LoadTracker) Load(id string) int { return t.load[id] }

// RemainingCapacity returns how many more exams the lecturer may take.
func (t *LoadTracker) RemainingCapacity(id string) int {
	l, ok := t.load[id]
	if !ok || l >= t.max {
		return 0
	}
	return t.max - l
}

// Reserve books one examining seat.
func (t *LoadTracker) Reserve(id string) error {
	l, ok := t.load[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLecturer, id)
	}
	if l+1 > t.max {
		return fmt.Errorf("%w: %s holds %d of %d", ErrCapacityExceeded, id, l, t.max)
	}
	t.load[id] = l + 1
	t.reserved[id]++
	return nil
}

// Release undoes one reservation made by this tracker.
func (t *LoadTracker) Release(id string) error {
	if t.reserved[id] == 0 {
		return fmt.Errorf("%w: no reservation held for %s", ErrUnknownLecturer, id)
	}
	t.reserved[id]--
	t.load[id]--
	return nil
}

// Rollback releases every reservation made during the run.
func (t *LoadTracker) Rollback() {
	for id, n := range t.reserved {
		t.load[id] -= n
		t.reserved[id] = 0
	}
}

// TotalRemaining sums the remaining capacity of lecturers accepted by keep.
// A nil keep counts everyone.
func (t *LoadTracker) TotalRemaining(keep func(id string) bool) int {
	total := 0
	for _, id := range t.ids {
		if keep == nil || keep(id) {
			total += t.RemainingCapacity(id)
		}
	}
	return total
}

// Snapshot returns the current loads as a pool.
func (t *LoadTracker) Snapshot() model.ExaminerPool {
	out := make(model.ExaminerPool, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, model.Lecturer{ID: id, Name: t.names[id], Load: t.load[id]})
	}
	return out
}
