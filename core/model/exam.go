package model

import "time"

// ExamStatus tracks the lifecycle of a scheduled exam.
type ExamStatus string

const (
	ExamProposed  ExamStatus = "proposed"
	ExamCommitted ExamStatus = "committed"
	ExamEdited    ExamStatus = "edited"
	ExamRemoved   ExamStatus = "removed"
)

// PanelAssignment lists the lecturers of one defense. Ketua is always the
// first supervisor; Pembimbing2 is a supervisor of record, not a drawn examiner.
type PanelAssignment struct {
	Ketua       string `json:"ketua"`
	Sekretaris  string `json:"sekretaris"`
	Anggota1    string `json:"anggota1"`
	Anggota2    string `json:"anggota2"`
	Pembimbing2 string `json:"pembimbing2,omitempty"`
}

// Examiners returns the three drawn examiners.
func (p PanelAssignment) Examiners() []string {
	return []string{p.Anggota1, p.Anggota2, p.Sekretaris}
}

// Members returns every lecturer that must attend, supervisors included.
func (p PanelAssignment) Members() []string {
	ids := []string{p.Ketua, p.Sekretaris, p.Anggota1, p.Anggota2}
	if p.Pembimbing2 != "" {
		ids = append(ids, p.Pembimbing2)
	}
	return ids
}

// Has reports whether the lecturer attends this panel in any role.
func (p PanelAssignment) Has(lecturerID string) bool {
	for _, id := range p.Members() {
		if id == lecturerID {
			return true
		}
	}
	return false
}

// ScheduledExam is one placed defense.
type ScheduledExam struct {
	ID            string          `json:"id"`
	CandidateID   string          `json:"candidate_id"`
	ThesisID      string          `json:"thesis_id"`
	Slot          TimeSlot        `json:"slot"`
	Panel         PanelAssignment `json:"panel"`
	Status        ExamStatus      `json:"status"`
	UpdatedAt     time.Time       `json:"updated_at"`
	RemovalReason string          `json:"removal_reason,omitempty"`
}

// Active reports whether the exam still holds its slot and panel.
func (e ScheduledExam) Active() bool { return e.Status != ExamRemoved }
