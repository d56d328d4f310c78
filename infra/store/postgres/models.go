package postgres

import (
	"time"

	"github.com/sita/sidang/core/model"
)

type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (settingRow) TableName() string { return "settings" }

type roomRow struct {
	Name     string `gorm:"primaryKey"`
	Position int    `gorm:"not null"`
}

func (roomRow) TableName() string { return "rooms" }

type lecturerRow struct {
	ID     string `gorm:"primaryKey"`
	Name   string `gorm:"not null"`
	Active bool   `gorm:"not null;default:true"`
}

func (lecturerRow) TableName() string { return "lecturers" }

type candidateRow struct {
	ID            string `gorm:"primaryKey"`
	ThesisID      string `gorm:"not null"`
	Title         string `gorm:"not null"`
	Name          string
	StudentNumber string
	Supervisor1ID string    `gorm:"column:supervisor1_id;not null"`
	Supervisor2ID string    `gorm:"column:supervisor2_id"`
	SubmittedAt   time.Time `gorm:"not null"`
	Ready         bool      `gorm:"not null;default:false"`
}

func (candidateRow) TableName() string { return "candidates" }

func (r candidateRow) toModel() model.Candidate {
	return model.Candidate{
		ID:            r.ID,
		ThesisID:      r.ThesisID,
		Title:         r.Title,
		Name:          r.Name,
		StudentNumber: r.StudentNumber,
		Supervisor1ID: r.Supervisor1ID,
		Supervisor2ID: r.Supervisor2ID,
		SubmittedAt:   r.SubmittedAt.UTC(),
	}
}

// examRow keeps the timestamp under a non-magic field name so gorm does not
// overwrite it on save.
type examRow struct {
	ID            string    `gorm:"primaryKey"`
	CandidateID   string    `gorm:"uniqueIndex;not null"`
	ThesisID      string    `gorm:"not null"`
	Date          string    `gorm:"type:date;not null;index"`
	StartMin      int       `gorm:"not null"`
	EndMin        int       `gorm:"not null"`
	Room          string    `gorm:"not null"`
	Ketua         string    `gorm:"not null"`
	Sekretaris    string    `gorm:"not null;index"`
	Anggota1      string    `gorm:"column:anggota1;not null;index"`
	Anggota2      string    `gorm:"column:anggota2;not null;index"`
	Pembimbing2   string    `gorm:"column:pembimbing2"`
	Status        string    `gorm:"not null"`
	ChangedAt     time.Time `gorm:"column:updated_at;not null"`
	RemovalReason string
}

func (examRow) TableName() string { return "exams" }

func examFromModel(e model.ScheduledExam) examRow {
	return examRow{
		ID:            e.ID,
		CandidateID:   e.CandidateID,
		ThesisID:      e.ThesisID,
		Date:          e.Slot.Date.Format(model.DateLayout),
		StartMin:      int(e.Slot.Start),
		EndMin:        int(e.Slot.End),
		Room:          e.Slot.Room,
		Ketua:         e.Panel.Ketua,
		Sekretaris:    e.Panel.Sekretaris,
		Anggota1:      e.Panel.Anggota1,
		Anggota2:      e.Panel.Anggota2,
		Pembimbing2:   e.Panel.Pembimbing2,
		Status:        string(e.Status),
		ChangedAt:     e.UpdatedAt,
		RemovalReason: e.RemovalReason,
	}
}

func (r examRow) toModel() (model.ScheduledExam, error) {
	// postgres returns date columns as full timestamps
	date, err := model.ParseDate(r.Date[:min(len(r.Date), len(model.DateLayout))])
	if err != nil {
		return model.ScheduledExam{}, err
	}
	return model.ScheduledExam{
		ID:          r.ID,
		CandidateID: r.CandidateID,
		ThesisID:    r.ThesisID,
		Slot: model.TimeSlot{
			Date:  date,
			Start: model.Clock(r.StartMin),
			End:   model.Clock(r.EndMin),
			Room:  r.Room,
		},
		Panel: model.PanelAssignment{
			Ketua:       r.Ketua,
			Sekretaris:  r.Sekretaris,
			Anggota1:    r.Anggota1,
			Anggota2:    r.Anggota2,
			Pembimbing2: r.Pembimbing2,
		},
		Status:        model.ExamStatus(r.Status),
		UpdatedAt:     r.ChangedAt.UTC(),
		RemovalReason: r.RemovalReason,
	}, nil
}

type triggerRow struct {
	ID        int    `gorm:"primaryKey;autoIncrement:false"`
	State     string `gorm:"not null"`
	RunAt     *time.Time
	ChangedAt time.Time `gorm:"column:updated_at;not null"`
	LastError string
}

func (triggerRow) TableName() string { return "trigger_state" }

// lockRow is the schedule lease. An empty LockedBy means free.
type lockRow struct {
	ID        int    `gorm:"primaryKey;autoIncrement:false"`
	LockedBy  string `gorm:"not null"`
	LockedAt  time.Time
	ExpiresAt time.Time
}

func (lockRow) TableName() string { return "schedule_lock" }

type loadRow struct {
	ID    string
	Name  string
	Seats int
}
