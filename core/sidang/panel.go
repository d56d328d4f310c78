package sidang

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sita/sidang/core/model"
)

// RoleMapping names which drawn examiner becomes sekretaris. The other two
// fill anggota1 and anggota2 in draw order.
type RoleMapping string

const (
	// DrawThirdIsSekretaris maps draws 1, 2, 3 to anggota1, anggota2, sekretaris.
	DrawThirdIsSekretaris RoleMapping = "third_is_sekretaris"
	// DrawFirstIsSekretaris maps draws 1, 2, 3 to sekretaris, anggota1, anggota2.
	DrawFirstIsSekretaris RoleMapping = "first_is_sekretaris"
)

// ParseRoleMapping accepts the configured mapping name. Empty selects the
// default.
func ParseRoleMapping(s string) (RoleMapping, error) {
	switch RoleMapping(strings.ToLower(strings.TrimSpace(s))) {
	case "", DrawThirdIsSekretaris:
		return DrawThirdIsSekretaris, nil
	case DrawFirstIsSekretaris:
		return DrawFirstIsSekretaris, nil
	}
	return "", fmt.Errorf("unknown role mapping %q", s)
}

// ExaminersPerPanel is the number of drawn examiners in every defense.
const ExaminersPerPanel = 3

// PanelAssignmentFailure reports a candidate for whom fewer than three
// eligible examiners remain.
type PanelAssignmentFailure struct {
	CandidateID string `json:"candidate_id"`
	Eligible    int    `json:"eligible"`
	Needed      int    `json:"needed"`
}

func (e *PanelAssignmentFailure) Error() string {
	return fmt.Sprintf("insufficient examiners for candidate %s: %d eligible, %d needed", e.CandidateID, e.Eligible, e.Needed)
}

// PanelAssigner draws the three examiners of a panel.
type PanelAssigner struct {
	Mapping RoleMapping
}

// Eligible lists lecturers who do not supervise c and still have capacity,
// ordered by (load, id).
func (a PanelAssigner) Eligible(c model.Candidate, t *LoadTracker) []string {
	var ids []string
	for _, id := range t.ids {
		if c.IsSupervisor(id) || t.RemainingCapacity(id) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		li, lj := t.Load(ids[i]), t.Load(ids[j])
		if li != lj {
			return li < lj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Assign picks the least-loaded eligible examiners for c. It does not
// reserve them; the caller does that once the panel is accepted.
func (a PanelAssigner) Assign(c model.Candidate, t *LoadTracker) (model.PanelAssignment, error) {
	return a.assignFrom(c, a.Eligible(c, t))
}

func (a PanelAssigner) assignFrom(c model.Candidate, eligible []string) (model.PanelAssignment, error) {
	if len(eligible) < ExaminersPerPanel {
		return model.PanelAssignment{}, &PanelAssignmentFailure{
			CandidateID: c.ID,
			Eligible:    len(eligible),
			Needed:      ExaminersPerPanel,
		}
	}
	drawn := eligible[:ExaminersPerPanel]
	p := model.PanelAssignment{Ketua: c.Supervisor1ID, Pembimbing2: c.Supervisor2ID}
	switch a.Mapping {
	case DrawFirstIsSekretaris:
		p.Sekretaris, p.Anggota1, p.Anggota2 = drawn[0], drawn[1], drawn[2]
	default:
		p.Anggota1, p.Anggota2, p.Sekretaris = drawn[0], drawn[1], drawn[2]
	}
	return p, nil
}
