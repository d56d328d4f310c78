package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sita/sidang/core/model"
)

// Key names one stored scheduling setting.
type Key string

const (
	KeyMaxExamsPerExaminer   Key = "max_mahasiswa_uji_per_dosen"
	KeySessionDuration       Key = "durasi_sidang_menit"
	KeyGap                   Key = "jeda_sidang_menit"
	KeyStart                 Key = "jam_mulai_sidang"
	KeyEnd                   Key = "jam_selesai_sidang"
	KeyFixedHolidays         Key = "hari_libur_tetap"
	KeySpecialDates          Key = "tanggal_libur_khusus"
	KeyRooms                 Key = "ruangan_sidang"
	KeyBreaks                Key = "waktu_istirahat"
	KeyDayOverrides          Key = "jadwal_hari_khusus"
	KeyMaxActiveSupervisions Key = "max_pembimbing_aktif"
)

type parser func(raw string, s *SchedulingSettings) error

var parsers = map[Key]parser{
	KeyMaxExamsPerExaminer:   intField(func(s *SchedulingSettings, v int) { s.MaxExamsPerExaminer = v }),
	KeySessionDuration:       intField(func(s *SchedulingSettings, v int) { s.SessionDurationMinutes = v }),
	KeyGap:                   intField(func(s *SchedulingSettings, v int) { s.GapMinutes = v }),
	KeyStart:                 clockField(func(s *SchedulingSettings, c model.Clock) { s.OperatingHours.Start = c }),
	KeyEnd:                   clockField(func(s *SchedulingSettings, c model.Clock) { s.OperatingHours.End = c }),
	KeyFixedHolidays:         parseFixedHolidays,
	KeySpecialDates:          parseSpecialDates,
	KeyRooms:                 parseRooms,
	KeyBreaks:                parseBreaks,
	KeyDayOverrides:          parseDayOverrides,
	KeyMaxActiveSupervisions: intField(func(s *SchedulingSettings, v int) { s.MaxActiveSupervisions = v }),
}

// Keys returns every known setting key in a stable order.
func Keys() []Key {
	keys := make([]Key, 0, len(parsers))
	for k := range parsers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Known reports whether k is a scheduling setting.
func Known(k string) bool {
	_, ok := parsers[Key(k)]
	return ok
}

// Parse builds SchedulingSettings from stored key/value rows. Missing keys
// keep their defaults; keys owned by other subsystems are ignored. The
// result is not validated.
func Parse(kv map[string]string) (SchedulingSettings, error) {
	s := Defaults()
	for _, k := range Keys() {
		raw, ok := kv[string(k)]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := parsers[k](raw, &s); err != nil {
			return SchedulingSettings{}, &ConfigurationError{Field: string(k), Reason: err.Error()}
		}
	}
	return s, nil
}

// Load parses and validates in one step.
func Load(kv map[string]string) (SchedulingSettings, error) {
	s, err := Parse(kv)
	if err != nil {
		return s, err
	}
	return s, s.Validate()
}

// unquote strips one level of JSON string encoding when present.
func unquote(raw string) string {
	raw = strings.TrimSpace(raw)
	var s string
	if strings.HasPrefix(raw, `"`) && json.Unmarshal([]byte(raw), &s) == nil {
		return strings.TrimSpace(s)
	}
	return raw
}

func intField(set func(*SchedulingSettings, int)) parser {
	return func(raw string, s *SchedulingSettings) error {
		v, err := strconv.Atoi(unquote(raw))
		if err != nil {
			return fmt.Errorf("expected integer, got %q", raw)
		}
		set(s, v)
		return nil
	}
}

func clockField(set func(*SchedulingSettings, model.Clock)) parser {
	return func(raw string, s *SchedulingSettings) error {
		c, err := model.ParseClock(unquote(raw))
		if err != nil {
			return err
		}
		set(s, c)
		return nil
	}
}

var weekdayNames = map[string]time.Weekday{
	"minggu": time.Sunday, "senin": time.Monday, "selasa": time.Tuesday, "rabu": time.Wednesday,
	"kamis": time.Thursday, "jumat": time.Friday, "sabtu": time.Saturday,
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// ParseWeekday accepts Indonesian or English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "'", "")
	if wd, ok := weekdayNames[name]; ok {
		return wd, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func parseFixedHolidays(raw string, s *SchedulingSettings) error {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return fmt.Errorf("expected JSON list of weekdays: %w", err)
	}
	s.FixedHolidays = s.FixedHolidays[:0:0]
	seen := map[time.Weekday]bool{}
	for _, n := range names {
		wd, err := ParseWeekday(n)
		if err != nil {
			return err
		}
		if !seen[wd] {
			seen[wd] = true
			s.FixedHolidays = append(s.FixedHolidays, wd)
		}
	}
	return nil
}

func parseSpecialDates(raw string, s *SchedulingSettings) error {
	var rows []struct {
		Tanggal    string `json:"tanggal"`
		Keterangan string `json:"keterangan"`
	}
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return fmt.Errorf("expected JSON list of {tanggal, keterangan}: %w", err)
	}
	s.SpecialDates = make([]SpecialDate, 0, len(rows))
	for _, r := range rows {
		d, err := model.ParseDate(r.Tanggal)
		if err != nil {
			return fmt.Errorf("special date %q: %w", r.Tanggal, err)
		}
		s.SpecialDates = append(s.SpecialDates, SpecialDate{Date: d, Reason: r.Keterangan})
	}
	return nil
}

// parseRooms accepts a JSON list or a comma separated string.
func parseRooms(raw string, s *SchedulingSettings) error {
	var rooms []string
	if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
		rooms = strings.Split(unquote(raw), ",")
	}
	s.Rooms = s.Rooms[:0:0]
	for _, r := range rooms {
		if r = strings.TrimSpace(r); r != "" {
			s.Rooms = append(s.Rooms, r)
		}
	}
	return nil
}

type rawBreak struct {
	Waktu       string `json:"waktu"`
	DurasiMenit int    `json:"durasi_menit"`
}

func convertBreaks(rows []rawBreak) ([]Break, error) {
	out := make([]Break, 0, len(rows))
	for _, r := range rows {
		c, err := model.ParseClock(r.Waktu)
		if err != nil {
			return nil, err
		}
		out = append(out, Break{Start: c, DurationMinutes: r.DurasiMenit})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func parseBreaks(raw string, s *SchedulingSettings) error {
	var rows []rawBreak
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return fmt.Errorf("expected JSON list of {waktu, durasi_menit}: %w", err)
	}
	b, err := convertBreaks(rows)
	if err != nil {
		return err
	}
	s.Breaks = b
	return nil
}

func parseDayOverrides(raw string, s *SchedulingSettings) error {
	var rows []struct {
		Hari              string     `json:"hari"`
		JamMulai          string     `json:"jam_mulai"`
		JamSelesai        string     `json:"jam_selesai"`
		DurasiSidangMenit *int       `json:"durasi_sidang_menit"`
		JedaSidangMenit   *int       `json:"jeda_sidang_menit"`
		WaktuIstirahat    []rawBreak `json:"waktu_istirahat"`
	}
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return fmt.Errorf("expected JSON list of day overrides: %w", err)
	}
	s.DayOverrides = make(map[time.Weekday]DayOverride, len(rows))
	for _, r := range rows {
		wd, err := ParseWeekday(r.Hari)
		if err != nil {
			return err
		}
		start, err := model.ParseClock(r.JamMulai)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Hari, err)
		}
		end, err := model.ParseClock(r.JamSelesai)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Hari, err)
		}
		breaks, err := convertBreaks(r.WaktuIstirahat)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Hari, err)
		}
		s.DayOverrides[wd] = DayOverride{
			Window:                 Window{Start: start, End: end},
			SessionDurationMinutes: r.DurasiSidangMenit,
			GapMinutes:             r.JedaSidangMenit,
			Breaks:                 breaks,
		}
	}
	return nil
}
