package schedule

import (
	"time"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/sidang"
)

type triggerRequest struct {
	RunAt string `json:"run_at" validate:"required"`
}

type swapRequest struct {
	ExamA string `json:"exam_a" validate:"required"`
	ExamB string `json:"exam_b" validate:"required,nefield=ExamA"`
}

type moveRequest struct {
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
}

type deleteRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// patchRequest mirrors sidang.Patch with wire formats: dates as
// YYYY-MM-DD and clock times as HH:MM.
type patchRequest struct {
	Date       *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Start      *string `json:"start" validate:"omitempty,datetime=15:04"`
	End        *string `json:"end" validate:"omitempty,datetime=15:04"`
	Room       *string `json:"room" validate:"omitempty,min=1"`
	Sekretaris *string `json:"sekretaris" validate:"omitempty,min=1"`
	Anggota1   *string `json:"anggota1" validate:"omitempty,min=1"`
	Anggota2   *string `json:"anggota2" validate:"omitempty,min=1"`
}

func (r patchRequest) toPatch() (sidang.Patch, error) {
	p := sidang.Patch{
		Room:       r.Room,
		Sekretaris: r.Sekretaris,
		Anggota1:   r.Anggota1,
		Anggota2:   r.Anggota2,
	}
	if r.Date != nil {
		d, err := model.ParseDate(*r.Date)
		if err != nil {
			return p, badRequest("date: %v", err)
		}
		p.Date = &d
	}
	var err error
	if p.Start, err = clockPtr(r.Start); err != nil {
		return p, badRequest("start: %v", err)
	}
	if p.End, err = clockPtr(r.End); err != nil {
		return p, badRequest("end: %v", err)
	}
	if p.Empty() {
		return p, badRequest("patch changes nothing")
	}
	return p, nil
}

func clockPtr(s *string) (*model.Clock, error) {
	if s == nil {
		return nil, nil
	}
	c, err := model.ParseClock(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type scheduleList struct {
	Total int                   `json:"total"`
	Exams []model.ScheduledExam `json:"exams"`
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, badRequest("%s must be RFC3339: %q", field, s)
	}
	return t, nil
}
