// Package fixture loads YAML seed files describing settings, rooms,
// lecturers and candidates, and writes them through a store.Seeder.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/store"
)

type LecturerDef struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active,omitempty"`
}

func (l LecturerDef) active() bool { return l.Active == nil || *l.Active }

type CandidateDef struct {
	ID            string    `yaml:"id"`
	ThesisID      string    `yaml:"thesis_id"`
	Title         string    `yaml:"title"`
	Name          string    `yaml:"name,omitempty"`
	StudentNumber string    `yaml:"student_number,omitempty"`
	Supervisor1   string    `yaml:"supervisor1"`
	Supervisor2   string    `yaml:"supervisor2,omitempty"`
	SubmittedAt   time.Time `yaml:"submitted_at"`
	Ready         *bool     `yaml:"ready,omitempty"`
}

func (c CandidateDef) ToModel() model.Candidate {
	thesis := c.ThesisID
	if thesis == "" {
		thesis = "T-" + c.ID
	}
	return model.Candidate{
		ID:            c.ID,
		ThesisID:      thesis,
		Title:         c.Title,
		Name:          c.Name,
		StudentNumber: c.StudentNumber,
		Supervisor1ID: c.Supervisor1,
		Supervisor2ID: c.Supervisor2,
		SubmittedAt:   c.SubmittedAt.UTC(),
	}
}

func (c CandidateDef) ready() bool { return c.Ready == nil || *c.Ready }

// Fixture is one seed file. Settings values may be scalars or YAML
// sequences and mappings; non-strings are stored as JSON.
type Fixture struct {
	Settings   map[string]any `yaml:"settings"`
	Rooms      []string       `yaml:"rooms,omitempty"`
	Lecturers  []LecturerDef  `yaml:"lecturers"`
	Candidates []CandidateDef `yaml:"candidates"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Settings   int `json:"settings"`
	Rooms      int `json:"rooms"`
	Lecturers  int `json:"lecturers"`
	Candidates int `json:"candidates"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a fixture.
func Parse(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks keys and references before anything is written.
func (fx *Fixture) Validate() error {
	for k := range fx.Settings {
		if !settings.Known(k) {
			return fmt.Errorf("%w: %s", store.ErrUnknownSetting, k)
		}
	}
	lecturers := make(map[string]bool, len(fx.Lecturers))
	for i, l := range fx.Lecturers {
		if l.ID == "" {
			return fmt.Errorf("lecturer %d: id is required", i)
		}
		if lecturers[l.ID] {
			return fmt.Errorf("lecturer %s: duplicate id", l.ID)
		}
		lecturers[l.ID] = true
	}
	seen := make(map[string]bool, len(fx.Candidates))
	for i, c := range fx.Candidates {
		if c.ID == "" {
			return fmt.Errorf("candidate %d: id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("candidate %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if !lecturers[c.Supervisor1] {
			return fmt.Errorf("candidate %s: unknown supervisor1 %q", c.ID, c.Supervisor1)
		}
		if c.Supervisor2 != "" && !lecturers[c.Supervisor2] {
			return fmt.Errorf("candidate %s: unknown supervisor2 %q", c.ID, c.Supervisor2)
		}
	}
	return nil
}

// Apply writes the fixture through s. Rooms listed explicitly replace the
// room table; otherwise the room setting, when present, is used.
func (fx *Fixture) Apply(ctx context.Context, s store.Seeder) (Summary, error) {
	var sum Summary
	for _, k := range settings.Keys() {
		v, ok := fx.Settings[string(k)]
		if !ok {
			continue
		}
		raw, err := settingValue(v)
		if err != nil {
			return sum, fmt.Errorf("setting %s: %w", k, err)
		}
		if err := s.PutSetting(ctx, k, raw); err != nil {
			return sum, fmt.Errorf("setting %s: %w", k, err)
		}
		sum.Settings++
	}
	if len(fx.Rooms) > 0 {
		if err := s.SyncRooms(ctx, fx.Rooms); err != nil {
			return sum, fmt.Errorf("rooms: %w", err)
		}
		sum.Rooms = len(fx.Rooms)
	}
	for _, l := range fx.Lecturers {
		if err := s.PutLecturer(ctx, model.Lecturer{ID: l.ID, Name: l.Name}, l.active()); err != nil {
			return sum, fmt.Errorf("lecturer %s: %w", l.ID, err)
		}
		sum.Lecturers++
	}
	for _, c := range fx.Candidates {
		if err := s.PutCandidate(ctx, c.ToModel(), c.ready()); err != nil {
			return sum, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		sum.Candidates++
	}
	return sum, nil
}

func settingValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case int, int64, float64, bool:
		return fmt.Sprint(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
