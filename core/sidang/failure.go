package sidang

import (
	"fmt"
	"sort"
	"strings"
)

// FailureKind classifies why a run could not place every candidate.
type FailureKind string

const (
	InsufficientExaminerCapacity FailureKind = "InsufficientExaminerCapacity"
	InsufficientRoomTimeCapacity FailureKind = "InsufficientRoomTimeCapacity"
	SupervisorOverload           FailureKind = "SupervisorOverload"
)

// SupervisorCount is one lecturer's first-supervisor count in a batch.
type SupervisorCount struct {
	LecturerID string `json:"lecturer_id"`
	Count      int    `json:"count"`
}

// SchedulingFailure is the structured result of an infeasible run. The
// Computation field carries the arithmetic an operator needs to see how far
// short the inputs are.
type SchedulingFailure struct {
	Kind        FailureKind       `json:"kind"`
	Computation string            `json:"computation"`
	Suggestion  string            `json:"suggestion"`
	Detail      map[string]int    `json:"detail"`
	Unplaced    []string          `json:"unplaced,omitempty"`
	Overloaded  []SupervisorCount `json:"overloaded,omitempty"`
}

func (f *SchedulingFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Computation)
}

// shortfall formats "<need> needed vs <have> available, shortfall <n>".
func shortfall(need, have int) string {
	short := need - have
	if short < 0 {
		short = 0
	}
	return fmt.Sprintf("%d needed vs %d available, shortfall %d", need, have, short)
}

type deficits struct {
	candidates   int
	seatsNeeded  int
	seatsHave    int
	eligible     int
	panelFailed  []string
	slotFailed   []string
	sessionsHave int
	horizonDays  int
	maxQuota     int
	minimalQuota int
}

func (d deficits) failure() *SchedulingFailure {
	detail := map[string]int{
		"candidates":             d.candidates,
		"seats_needed":           d.seatsNeeded,
		"seats_available":        d.seatsHave,
		"eligible_lecturers":     d.eligible,
		"panel_failures":         len(d.panelFailed),
		"slot_failures":          len(d.slotFailed),
		"sessions_needed":        d.candidates,
		"sessions_available":     d.sessionsHave,
		"horizon_days":           d.horizonDays,
		"max_exams_per_examiner": d.maxQuota,
	}
	unplaced := append(append([]string(nil), d.panelFailed...), d.slotFailed...)
	sort.Strings(unplaced)

	var parts, hints []string
	kind := InsufficientRoomTimeCapacity
	if len(d.panelFailed) > 0 {
		kind = InsufficientExaminerCapacity
		parts = append(parts, fmt.Sprintf("%d candidates need %d examiner seats; eligible pool supplies %d; %s",
			d.candidates, d.seatsNeeded, d.seatsHave, shortfall(d.seatsNeeded, d.seatsHave)))
		if d.seatsNeeded <= d.seatsHave {
			parts = append(parts, fmt.Sprintf("%d candidates have fewer than %d eligible non-supervisor examiners",
				len(d.panelFailed), ExaminersPerPanel))
		}
		if d.minimalQuota > d.maxQuota {
			hints = append(hints, fmt.Sprintf("raise max_mahasiswa_uji_per_dosen from %d to at least %d", d.maxQuota, d.minimalQuota))
		}
		if short := d.seatsNeeded - d.seatsHave; short > 0 && d.maxQuota > 0 {
			hints = append(hints, fmt.Sprintf("add at least %d examiners", ceilDiv(short, d.maxQuota)))
		}
		hints = append(hints, "or reduce the eligible batch")
	}
	if len(d.slotFailed) > 0 {
		parts = append(parts, fmt.Sprintf("%d sessions within %d days: %s; %d candidates found no free slot",
			d.candidates, d.horizonDays, shortfall(d.candidates, d.sessionsHave), len(d.slotFailed)))
		hints = append(hints, "add rooms or extend operating hours and working days")
	}
	return &SchedulingFailure{
		Kind:        kind,
		Computation: strings.Join(parts, "; "),
		Suggestion:  strings.Join(hints, ", "),
		Detail:      detail,
		Unplaced:    unplaced,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
