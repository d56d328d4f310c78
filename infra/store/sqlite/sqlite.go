// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/core/settings"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/core/trigger"
)

const schema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
    name TEXT PRIMARY KEY,
    position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lecturers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    thesis_id TEXT NOT NULL,
    title TEXT NOT NULL,
    name TEXT,
    student_number TEXT,
    supervisor1_id TEXT NOT NULL,
    supervisor2_id TEXT,
    submitted_at INTEGER NOT NULL,
    ready INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS exams (
    id TEXT PRIMARY KEY,
    candidate_id TEXT NOT NULL UNIQUE,
    thesis_id TEXT NOT NULL,
    date TEXT NOT NULL,
    start_min INTEGER NOT NULL,
    end_min INTEGER NOT NULL,
    room TEXT NOT NULL,
    ketua TEXT NOT NULL,
    sekretaris TEXT NOT NULL,
    anggota1 TEXT NOT NULL,
    anggota2 TEXT NOT NULL,
    pembimbing2 TEXT,
    status TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    removal_reason TEXT
);
CREATE TABLE IF NOT EXISTS trigger_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    state TEXT NOT NULL,
    run_at INTEGER,
    updated_at INTEGER NOT NULL,
    last_error TEXT
);
CREATE TABLE IF NOT EXISTS schedule_lock (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    locked_by TEXT NOT NULL,
    locked_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);`

// Store persists scheduling data in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// inside this process and busy_timeout covers other processes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SchedulingSettings parses the stored settings rows. When no room setting
// is stored the room table is used. The result is not validated.
func (s *Store) SchedulingSettings(ctx context.Context) (settings.SchedulingSettings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings.SchedulingSettings{}, err
	}
	defer func() { _ = rows.Close() }()
	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return settings.SchedulingSettings{}, err
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return settings.SchedulingSettings{}, err
	}
	_ = rows.Close()
	out, err := settings.Parse(kv)
	if err != nil {
		return out, err
	}
	if len(out.Rooms) == 0 {
		if out.Rooms, err = s.ListRooms(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// PutSetting stores one settings row.
func (s *Store) PutSetting(ctx context.Context, key settings.Key, value string) error {
	if !settings.Known(string(key)) {
		return fmt.Errorf("%w: %s", store.ErrUnknownSetting, key)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(key), value)
	return err
}

// ListRooms returns the rooms in their configured order.
func (s *Store) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM rooms ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// SyncRooms replaces the room list.
func (s *Store) SyncRooms(ctx context.Context, rooms []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
			return err
		}
		for i, r := range rooms {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO rooms (name, position) VALUES (?, ?)`, r, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutLecturer inserts or updates a lecturer.
func (s *Store) PutLecturer(ctx context.Context, l model.Lecturer, active bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO lecturers (id, name, active) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		l.ID, l.Name, boolInt(active))
	return err
}

// ListLecturersWithCurrentLoad returns active lecturers and the number of
// examining seats each holds in the stored schedule.
func (s *Store) ListLecturersWithCurrentLoad(ctx context.Context) (model.ExaminerPool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT l.id, l.name,
        (SELECT COUNT(*) FROM exams e WHERE e.status <> ? AND
            (e.sekretaris = l.id OR e.anggota1 = l.id OR e.anggota2 = l.id))
        FROM lecturers l WHERE l.active = 1 ORDER BY l.id`, string(model.ExamRemoved))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var pool model.ExaminerPool
	for rows.Next() {
		var l model.Lecturer
		if err := rows.Scan(&l.ID, &l.Name, &l.Load); err != nil {
			return nil, err
		}
		pool = append(pool, l)
	}
	return pool, rows.Err()
}

// PutCandidate inserts or updates a candidate.
func (s *Store) PutCandidate(ctx context.Context, c model.Candidate, ready bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO candidates
        (id, thesis_id, title, name, student_number, supervisor1_id, supervisor2_id, submitted_at, ready)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET thesis_id = excluded.thesis_id, title = excluded.title,
            name = excluded.name, student_number = excluded.student_number,
            supervisor1_id = excluded.supervisor1_id, supervisor2_id = excluded.supervisor2_id,
            submitted_at = excluded.submitted_at, ready = excluded.ready`,
		c.ID, c.ThesisID, c.Title, c.Name, c.StudentNumber, c.Supervisor1ID, c.Supervisor2ID,
		nanos(c.SubmittedAt), boolInt(ready))
	return err
}

// ListCandidates returns ready candidates without a stored exam, oldest
// submission first. A removed exam still counts.
func (s *Store) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.thesis_id, c.title, COALESCE(c.name, ''),
        COALESCE(c.student_number, ''), c.supervisor1_id, COALESCE(c.supervisor2_id, ''), c.submitted_at
        FROM candidates c
        WHERE c.ready = 1 AND NOT EXISTS (SELECT 1 FROM exams e WHERE e.candidate_id = c.id)
        ORDER BY c.submitted_at, c.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var ts int64
		if err := rows.Scan(&c.ID, &c.ThesisID, &c.Title, &c.Name, &c.StudentNumber,
			&c.Supervisor1ID, &c.Supervisor2ID, &ts); err != nil {
			return nil, err
		}
		c.SubmittedAt = fromNanos(ts)
		res = append(res, c)
	}
	return res, rows.Err()
}

const examColumns = `id, candidate_id, thesis_id, date, start_min, end_min, room,
    ketua, sekretaris, anggota1, anggota2, pembimbing2, status, updated_at, removal_reason`

// ListSchedule returns every stored exam ordered by slot.
func (s *Store) ListSchedule(ctx context.Context) ([]model.ScheduledExam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams
        ORDER BY date, start_min, (SELECT position FROM rooms r WHERE r.name = exams.room), room, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ScheduledExam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func scanExam(rows *sql.Rows) (model.ScheduledExam, error) {
	var e model.ScheduledExam
	var date, status string
	var start, end int
	var updated int64
	var p2, reason sql.NullString
	if err := rows.Scan(&e.ID, &e.CandidateID, &e.ThesisID, &date, &start, &end, &e.Slot.Room,
		&e.Panel.Ketua, &e.Panel.Sekretaris, &e.Panel.Anggota1, &e.Panel.Anggota2, &p2,
		&status, &updated, &reason); err != nil {
		return e, err
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("exam %s: %w", e.ID, err)
	}
	e.Slot.Date = d
	e.Slot.Start = model.Clock(start)
	e.Slot.End = model.Clock(end)
	e.Panel.Pembimbing2 = p2.String
	e.Status = model.ExamStatus(status)
	e.UpdatedAt = fromNanos(updated)
	e.RemovalReason = reason.String
	return e, nil
}

func examArgs(e model.ScheduledExam) []any {
	return []any{e.CandidateID, e.ThesisID, e.Slot.Date.Format(model.DateLayout),
		int(e.Slot.Start), int(e.Slot.End), e.Slot.Room,
		e.Panel.Ketua, e.Panel.Sekretaris, e.Panel.Anggota1, e.Panel.Anggota2,
		nullString(e.Panel.Pembimbing2), string(e.Status), nanos(e.UpdatedAt), nullString(e.RemovalReason)}
}

// CommitRun inserts the generated exams and stores the trigger atomically.
func (s *Store) CommitRun(ctx context.Context, exams []model.ScheduledExam, t trigger.Trigger) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range exams {
			args := append([]any{e.ID}, examArgs(e)...)
			if _, err := tx.ExecContext(ctx, `INSERT INTO exams (`+examColumns+`)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
				return fmt.Errorf("insert exam %s: %w", e.ID, err)
			}
		}
		return saveTrigger(ctx, tx, t)
	})
}

// UpdateExams rewrites the given exams. An unknown id aborts the batch.
func (s *Store) UpdateExams(ctx context.Context, exams []model.ScheduledExam) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range exams {
			args := append(examArgs(e), e.ID)
			res, err := tx.ExecContext(ctx, `UPDATE exams SET candidate_id = ?, thesis_id = ?,
                date = ?, start_min = ?, end_min = ?, room = ?, ketua = ?, sekretaris = ?,
                anggota1 = ?, anggota2 = ?, pembimbing2 = ?, status = ?, updated_at = ?,
                removal_reason = ?
                WHERE id = ?`, args...)
			if err != nil {
				return fmt.Errorf("update exam %s: %w", e.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return fmt.Errorf("%w: exam %s", store.ErrNotFound, e.ID)
			}
		}
		return nil
	})
}

// RemoveExam marks an active exam removed and stores the reason.
func (s *Store) RemoveExam(ctx context.Context, id, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exams SET status = ?, removal_reason = ?, updated_at = ?
        WHERE id = ? AND status <> ?`,
		string(model.ExamRemoved), reason, nanos(at), id, string(model.ExamRemoved))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: exam %s", store.ErrNotFound, id)
	}
	return nil
}

// DeleteAll removes every exam and stores t in the same transaction.
func (s *Store) DeleteAll(ctx context.Context, t trigger.Trigger) (int, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM exams`)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		return saveTrigger(ctx, tx, t)
	})
	return int(deleted), err
}

// AcquireLock takes the lease row in a single upsert, so concurrent
// processes on the same file serialise on SQLite's write lock.
func (s *Store) AcquireLock(ctx context.Context, owner string, now time.Time, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO schedule_lock (id, locked_by, locked_at, expires_at)
        VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET locked_by = excluded.locked_by,
            locked_at = excluded.locked_at, expires_at = excluded.expires_at
        WHERE schedule_lock.locked_by = excluded.locked_by
            OR schedule_lock.expires_at <= excluded.locked_at`,
		owner, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrLockContention
	}
	return nil
}

// ReleaseLock deletes the lease row when owner holds it.
func (s *Store) ReleaseLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedule_lock WHERE id = 1 AND locked_by = ?`, owner)
	return err
}

// Trigger loads the trigger record. A missing row reads as not scheduled.
func (s *Store) Trigger(ctx context.Context) (trigger.Trigger, error) {
	var state string
	var runAt sql.NullInt64
	var updated int64
	var lastErr sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT state, run_at, updated_at, last_error
        FROM trigger_state WHERE id = 1`).Scan(&state, &runAt, &updated, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return trigger.Trigger{State: trigger.NotScheduled}, nil
	}
	if err != nil {
		return trigger.Trigger{}, err
	}
	st, err := trigger.ParseState(state)
	if err != nil {
		return trigger.Trigger{}, err
	}
	t := trigger.Trigger{State: st, UpdatedAt: fromNanos(updated), LastError: lastErr.String}
	if runAt.Valid {
		at := time.Unix(0, runAt.Int64).UTC()
		t.RunAt = &at
	}
	return t, nil
}

// SaveTrigger stores the trigger record.
func (s *Store) SaveTrigger(ctx context.Context, t trigger.Trigger) error {
	return s.withTx(ctx, func(tx *sql.Tx) error { return saveTrigger(ctx, tx, t) })
}

func saveTrigger(ctx context.Context, tx *sql.Tx, t trigger.Trigger) error {
	var runAt any
	if t.RunAt != nil {
		runAt = t.RunAt.UnixNano()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO trigger_state (id, state, run_at, updated_at, last_error)
        VALUES (1, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET state = excluded.state, run_at = excluded.run_at,
            updated_at = excluded.updated_at, last_error = excluded.last_error`,
		string(t.State), runAt, nanos(t.UpdatedAt), nullString(t.LastError))
	return err
}

// nanos maps the zero time to 0 so it survives a round trip.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
