package model

import "time"

// Candidate is a student eligible for a thesis defense.
type Candidate struct {
	ID            string    `json:"id"`
	ThesisID      string    `json:"thesis_id"`
	Title         string    `json:"title"`
	Name          string    `json:"name,omitempty"`
	StudentNumber string    `json:"student_number,omitempty"`
	Supervisor1ID string    `json:"supervisor1_id"`
	Supervisor2ID string    `json:"supervisor2_id,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Supervisors returns the non-empty supervisor ids.
func (c Candidate) Supervisors() []string {
	ids := []string{c.Supervisor1ID}
	if c.Supervisor2ID != "" {
		ids = append(ids, c.Supervisor2ID)
	}
	return ids
}

// IsSupervisor reports whether the lecturer supervises this candidate.
func (c Candidate) IsSupervisor(lecturerID string) bool {
	return lecturerID != "" && (lecturerID == c.Supervisor1ID || lecturerID == c.Supervisor2ID)
}

// Lecturer is a member of the examiner pool. Load is the number of
// examining seats already held when the snapshot was taken.
type Lecturer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Load int    `json:"load"`
}

// ExaminerPool is a snapshot of lecturers and their current load.
type ExaminerPool []Lecturer

// IDs returns the lecturer ids in pool order.
func (p ExaminerPool) IDs() []string {
	ids := make([]string, len(p))
	for i, l := range p {
		ids[i] = l.ID
	}
	return ids
}
