package sidang

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sita/sidang/core/model"
)

// LoadStats describes how evenly examining seats are spread over the pool.
type LoadStats struct {
	Lecturers int     `json:"lecturers"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Max       float64 `json:"max"`
}

// DrawnCounts returns how often each lecturer sits as a drawn examiner.
func DrawnCounts(exams []model.ScheduledExam) map[string]int {
	out := map[string]int{}
	for _, e := range exams {
		if e.Status == model.ExamRemoved {
			continue
		}
		for _, id := range e.Panel.Examiners() {
			out[id]++
		}
	}
	return out
}

// LoadSpread computes statistics of drawn counts over every pool member,
// counting lecturers without exams as zero.
func LoadSpread(pool model.ExaminerPool, exams []model.ScheduledExam) LoadStats {
	if len(pool) == 0 {
		return LoadStats{}
	}
	counts := DrawnCounts(exams)
	xs := make([]float64, len(pool))
	for i, l := range pool {
		xs[i] = float64(counts[l.ID])
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return LoadStats{Lecturers: len(xs), Mean: mean, StdDev: std, Max: floats.Max(xs)}
}
