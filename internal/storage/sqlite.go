package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "metasbot/pkg/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store and applies the embedded schema.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Schedules ----

const scheduleColumns = `
	s.id, s.name, s.scheduled_time, s.days_of_week, s.active,
	d.id, d.key, d.name, d.description,
	dt.id, dt.name, dt.content,
	st.id, st.name, st.content`

const scheduleJoins = `
	FROM automation_schedules s
	JOIN automation_definitions d ON d.id = s.definition_id
	LEFT JOIN automation_templates dt ON dt.id = d.default_template_id
	LEFT JOIN automation_templates st ON st.id = s.template_id`

func (s *sqliteStore) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+scheduleColumns+scheduleJoins+` WHERE s.active = 1 ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		recipients, err := s.activeRecipients(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Recipients = recipients
	}
	return out, nil
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+scheduleColumns+scheduleJoins+` WHERE s.id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	recipients, err := s.activeRecipients(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	sched.Recipients = recipients
	return sched, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (*Schedule, error) {
	var (
		sched  Schedule
		def    Definition
		days   string
		active int
		dtID   sql.NullInt64
		dtName sql.NullString
		dtBody sql.NullString
		stID   sql.NullInt64
		stName sql.NullString
		stBody sql.NullString
	)
	err := r.Scan(
		&sched.ID, &sched.Name, &sched.ScheduledTime, &days, &active,
		&def.ID, &def.Key, &def.Name, &def.Description,
		&dtID, &dtName, &dtBody,
		&stID, &stName, &stBody,
	)
	if err != nil {
		return nil, err
	}
	sched.Active = active != 0
	if err := json.Unmarshal([]byte(days), &sched.DaysOfWeek); err != nil {
		return nil, fmt.Errorf("schedule %d: bad days_of_week %q: %w", sched.ID, days, err)
	}
	if dtID.Valid {
		def.DefaultTemplate = &Template{ID: dtID.Int64, Name: dtName.String, Content: dtBody.String}
	}
	sched.Definition = &def
	if stID.Valid {
		sched.Template = &Template{ID: stID.Int64, Name: stName.String, Content: stBody.String}
	}
	return &sched, nil
}

func (s *sqliteStore) activeRecipients(ctx context.Context, scheduleID int64) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.phone, c.department, c.active
		 FROM automation_recipients r
		 JOIN automation_contacts c ON c.id = r.contact_id
		 WHERE r.schedule_id = ? AND c.active = 1
		 ORDER BY c.id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Department, &active); err != nil {
			return nil, err
		}
		c.Active = active != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- Queue ----

func (s *sqliteStore) ListPendingQueueJobs(ctx context.Context) ([]QueueJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, payload, status, logs, created_at, updated_at
		 FROM automation_queue
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC`, JobPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueJob
	for rows.Next() {
		var (
			j       QueueJob
			schedID sql.NullInt64
			payload string
			created string
			updated string
		)
		if err := rows.Scan(&j.ID, &schedID, &payload, &j.Status, &j.Logs, &created, &updated); err != nil {
			return nil, err
		}
		if schedID.Valid {
			v := schedID.Int64
			j.ScheduleID = &v
		}
		j.Payload = json.RawMessage(payload)
		j.CreatedAt = parseTime(created)
		j.UpdatedAt = parseTime(updated)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClaimQueueJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_queue SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		JobProcessing, formatTime(time.Now()), id, JobPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) UpdateQueueJobStatus(ctx context.Context, id int64, status JobStatus, logs string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_queue SET status = ?, logs = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		status, logs, formatTime(time.Now()), id, JobCompleted, JobFailed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var cur string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM automation_queue WHERE id = ?`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrTerminalStatus
	}
	return nil
}

// ---- Events ----

func (s *sqliteStore) AppendEvent(ctx context.Context, eventType string, details map[string]any, contactID *int64) error {
	if details == nil {
		details = map[string]any{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return err
	}
	var cid any
	if contactID != nil {
		cid = *contactID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automation_logs(event_type, details, contact_id, created_at)
		 VALUES(?,?,?,?)`,
		eventType, string(b), cid, formatTime(time.Now()))
	return err
}

// ---- Lock ----

func (s *sqliteStore) GetLock(ctx context.Context) (*LockRecord, error) {
	var rec LockRecord
	var hb string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, heartbeat FROM scheduler_lock WHERE id = 1`).Scan(&rec.Owner, &hb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Heartbeat = parseTime(hb)
	return &rec, nil
}

func (s *sqliteStore) PutLock(ctx context.Context, rec LockRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduler_lock(id, owner, heartbeat) VALUES(1,?,?)
		 ON CONFLICT(id) DO UPDATE SET owner=excluded.owner, heartbeat=excluded.heartbeat`,
		rec.Owner, formatTime(rec.Heartbeat))
	return err
}

func (s *sqliteStore) RenewLock(ctx context.Context, owner string, heartbeat time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_lock SET heartbeat = ? WHERE id = 1 AND owner = ?`,
		formatTime(heartbeat), owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) DeleteLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduler_lock WHERE id = 1 AND owner = ?`, owner)
	return err
}

// ---- time encoding ----

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
