package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/infra/store/sqlite"
)

const sample = `
settings:
  durasi_sidang_menit: 60
  jam_mulai_sidang: "08:00"
  jam_selesai_sidang: "12:00"
  ruangan_sidang: [R1, R2]
  hari_libur_tetap: [sabtu, minggu]
  tanggal_libur_khusus:
    - tanggal: "2025-12-25"
      keterangan: Natal
lecturers:
  - {id: L1, name: Dr One}
  - {id: L2, name: Dr Two}
  - {id: L3, name: Dr Three}
  - {id: L4, name: Dr Four}
  - {id: L5, name: Dr Five, active: false}
candidates:
  - id: C1
    title: Graph colouring
    supervisor1: L1
    supervisor2: L2
    submitted_at: 2025-08-01T09:00:00Z
  - id: C2
    thesis_id: T-77
    title: Draft
    supervisor1: L2
    submitted_at: 2025-08-02T09:00:00Z
    ready: false
`

type recorder struct {
	settings   map[settings.Key]string
	rooms      []string
	lecturers  map[string]bool
	candidates map[string]model.Candidate
	fail       error
}

func newRecorder() *recorder {
	return &recorder{settings: map[settings.Key]string{}, lecturers: map[string]bool{}, candidates: map[string]model.Candidate{}}
}

func (r *recorder) PutSetting(_ context.Context, k settings.Key, v string) error {
	r.settings[k] = v
	return r.fail
}
func (r *recorder) SyncRooms(_ context.Context, rooms []string) error {
	r.rooms = rooms
	return nil
}
func (r *recorder) PutLecturer(_ context.Context, l model.Lecturer, active bool) error {
	r.lecturers[l.ID] = active
	return nil
}
func (r *recorder) PutCandidate(_ context.Context, c model.Candidate, _ bool) error {
	r.candidates[c.ID] = c
	return nil
}

func TestParseAndApply(t *testing.T) {
	fx, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	rec := newRecorder()
	sum, err := fx.Apply(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Summary{Settings: 6, Lecturers: 5, Candidates: 2}, sum)
	assert.Equal(t, "60", rec.settings[settings.KeySessionDuration])
	assert.Equal(t, `["R1","R2"]`, rec.settings[settings.KeyRooms])
	assert.Equal(t, `[{"keterangan":"Natal","tanggal":"2025-12-25"}]`, rec.settings[settings.KeySpecialDates])
	assert.False(t, rec.lecturers["L5"])
	assert.True(t, rec.lecturers["L1"])
	assert.Equal(t, "T-C1", rec.candidates["C1"].ThesisID)
	assert.Equal(t, "T-77", rec.candidates["C2"].ThesisID)
	assert.True(t, rec.candidates["C1"].SubmittedAt.Equal(time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)))
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown setting":    "settings: {colour: blue}",
		"unknown field":      "lecturers: [{id: L1, nmae: x}]",
		"duplicate lecturer": "lecturers: [{id: L1}, {id: L1}]",
		"missing supervisor": "lecturers: [{id: L1}]\ncandidates: [{id: C1, supervisor1: L9}]",
		"missing id":         "candidates: [{title: x}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
	_, err := Parse(strings.NewReader("settings: {colour: blue}"))
	assert.True(t, errors.Is(err, store.ErrUnknownSetting))
}

func TestParseEmpty(t *testing.T) {
	fx, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	sum, err := fx.Apply(context.Background(), newRecorder())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestApplyStopsOnError(t *testing.T) {
	fx, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	rec := newRecorder()
	rec.fail = errors.New("disk full")
	_, err = fx.Apply(context.Background(), rec)
	require.Error(t, err)
	assert.Empty(t, rec.lecturers)
}

func TestLoadIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	fx, err := Load(path)
	require.NoError(t, err)

	s, err := sqlite.Open(filepath.Join(dir, "sidang.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	_, err = fx.Apply(ctx, s)
	require.NoError(t, err)

	cfg, err := s.SchedulingSettings(ctx)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"R1", "R2"}, cfg.Rooms)
	assert.Equal(t, 60, cfg.SessionDurationMinutes)
	assert.True(t, cfg.IsHoliday(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)))

	cs, err := s.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "C1", cs[0].ID)

	pool, err := s.ListLecturersWithCurrentLoad(ctx)
	require.NoError(t, err)
	assert.Len(t, pool, 4)
}
