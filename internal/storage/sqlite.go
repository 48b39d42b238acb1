package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"reminderd/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func New(dbPath string, logger *zap.SugaredLogger) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT DEFAULT '',
			scheduled_at DATETIME NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			cadence TEXT NOT NULL DEFAULT 'none',
			interval INTEGER NOT NULL DEFAULT 1,
			days_of_week TEXT DEFAULT '',
			anchor_date DATETIME,
			custom_rule TEXT DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME,
			last_sent_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			key TEXT NOT NULL UNIQUE,
			reminder_id INTEGER NOT NULL,
			occurrence_at DATETIME NOT NULL,
			run_at DATETIME NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			locked_until DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_user_id ON reminders(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_is_deleted ON reminders(is_deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_run_at ON jobs(run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_reminder_id ON jobs(reminder_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// === Reminders ===

func (s *Storage) CreateReminder(r *domain.Reminder) error {
	res, err := s.db.Exec(
		`INSERT INTO reminders (user_id, title, body, scheduled_at, timezone, cadence, interval, days_of_week, anchor_date, custom_rule)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Title, r.Body, r.ScheduledAt.UTC(), r.Timezone,
		string(r.Recurrence.Cadence), r.Recurrence.Interval,
		domain.EncodeDays(r.Recurrence.DaysOfWeek), r.Recurrence.AnchorDate, r.Recurrence.CustomRule,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	r.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetReminder(id int64) (*domain.Reminder, error) {
	r := &domain.Reminder{}
	var days string
	var cadence string
	err := s.db.QueryRow(
		`SELECT id, user_id, title, body, scheduled_at, timezone, cadence, interval, days_of_week, anchor_date, custom_rule, is_deleted, deleted_at, last_sent_at, created_at
		 FROM reminders WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.ScheduledAt, &r.Timezone,
		&cadence, &r.Recurrence.Interval, &days, &r.Recurrence.AnchorDate,
		&r.Recurrence.CustomRule, &r.IsDeleted, &r.DeletedAt, &r.LastSentAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Recurrence.Cadence = domain.Cadence(cadence)
	r.Recurrence.DaysOfWeek = domain.DecodeDays(days)
	r.ScheduledAt = r.ScheduledAt.UTC()
	return r, nil
}

func (s *Storage) UpdateReminder(r *domain.Reminder) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET title = ?, body = ?, scheduled_at = ?, timezone = ?, cadence = ?, interval = ?, days_of_week = ?, anchor_date = ?, custom_rule = ?
		 WHERE id = ?`,
		r.Title, r.Body, r.ScheduledAt.UTC(), r.Timezone,
		string(r.Recurrence.Cadence), r.Recurrence.Interval,
		domain.EncodeDays(r.Recurrence.DaysOfWeek), r.Recurrence.AnchorDate, r.Recurrence.CustomRule,
		r.ID,
	)
	return err
}

// SoftDeleteReminder marks the reminder deleted. Rows are never removed so
// a late-firing job can still observe the deletion.
func (s *Storage) SoftDeleteReminder(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET is_deleted = 1, deleted_at = ? WHERE id = ?`,
		at.UTC(), id,
	)
	return err
}

func (s *Storage) UpdateReminderLastSent(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE reminders SET last_sent_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}

func (s *Storage) ListActiveReminders() ([]*domain.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, body, scheduled_at, timezone, cadence, interval, days_of_week, anchor_date, custom_rule, is_deleted, deleted_at, last_sent_at, created_at
		 FROM reminders WHERE is_deleted = 0 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		r := &domain.Reminder{}
		var days, cadence string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.ScheduledAt, &r.Timezone,
			&cadence, &r.Recurrence.Interval, &days, &r.Recurrence.AnchorDate,
			&r.Recurrence.CustomRule, &r.IsDeleted, &r.DeletedAt, &r.LastSentAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Recurrence.Cadence = domain.Cadence(cadence)
		r.Recurrence.DaysOfWeek = domain.DecodeDays(days)
		r.ScheduledAt = r.ScheduledAt.UTC()
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *Storage) ListRemindersByUser(userID int64) ([]*domain.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, body, scheduled_at, timezone, cadence, interval, days_of_week, anchor_date, custom_rule, is_deleted, deleted_at, last_sent_at, created_at
		 FROM reminders WHERE user_id = ? AND is_deleted = 0 ORDER BY scheduled_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		r := &domain.Reminder{}
		var days, cadence string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Body, &r.ScheduledAt, &r.Timezone,
			&cadence, &r.Recurrence.Interval, &days, &r.Recurrence.AnchorDate,
			&r.Recurrence.CustomRule, &r.IsDeleted, &r.DeletedAt, &r.LastSentAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Recurrence.Cadence = domain.Cadence(cadence)
		r.Recurrence.DaysOfWeek = domain.DecodeDays(days)
		r.ScheduledAt = r.ScheduledAt.UTC()
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// === Jobs ===

// InsertJob inserts a job unless one with the same key already exists.
// Returns false when the key was a duplicate; duplicate insertion is the
// idempotency mechanism, not an error.
func (s *Storage) InsertJob(ctx context.Context, j *domain.Job) (bool, error) {
	var res sql.Result
	err := retry.Do(
		func() error {
			var execErr error
			res, execErr = s.db.Exec(
				`INSERT INTO jobs (type, key, reminder_id, occurrence_at, run_at, attempts)
				 VALUES (?, ?, ?, ?, ?, 0)
				 ON CONFLICT(key) DO NOTHING`,
				j.Type, j.Key, j.ReminderID, j.OccurrenceAt.UTC(), j.RunAt.UTC(),
			)
			return execErr
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Infow("retrying job insert", "attempt", n, "key", j.Key, "err", retryErr)
		}),
	)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert job rows: %w", err)
	}
	if n > 0 {
		id, _ := res.LastInsertId()
		j.ID = id
	}
	return n > 0, nil
}

func (s *Storage) DeleteJobsByReminder(ctx context.Context, reminderID int64) (int64, error) {
	var res sql.Result
	err := retry.Do(
		func() error {
			var execErr error
			res, execErr = s.db.Exec(`DELETE FROM jobs WHERE reminder_id = ?`, reminderID)
			return execErr
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Storage) DeleteJob(id int64) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// ClaimDueJobs leases up to limit jobs whose run_at has passed and whose
// lock has expired. The locked_until lease is what lets another worker
// pick a job back up after a crash.
func (s *Storage) ClaimDueJobs(now, lockUntil time.Time, limit int) ([]*domain.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, type, key, reminder_id, occurrence_at, run_at, attempts, locked_until, created_at
		 FROM jobs
		 WHERE run_at <= ? AND (locked_until IS NULL OR locked_until <= ?)
		 ORDER BY run_at ASC
		 LIMIT ?`,
		now.UTC(), now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}

	var jobs []*domain.Job
	for rows.Next() {
		j := &domain.Job{}
		if err := rows.Scan(&j.ID, &j.Type, &j.Key, &j.ReminderID, &j.OccurrenceAt,
			&j.RunAt, &j.Attempts, &j.LockedUntil, &j.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		j.OccurrenceAt = j.OccurrenceAt.UTC()
		j.RunAt = j.RunAt.UTC()
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, j := range jobs {
		if _, err := tx.Exec(`UPDATE jobs SET locked_until = ? WHERE id = ?`, lockUntil.UTC(), j.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReleaseJob returns a failed job to the queue for another attempt.
func (s *Storage) ReleaseJob(id int64, attempts int, nextRun time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET attempts = ?, run_at = ?, locked_until = NULL WHERE id = ?`,
		attempts, nextRun.UTC(), id,
	)
	return err
}

func (s *Storage) CountJobsByReminder(reminderID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE reminder_id = ?`, reminderID).Scan(&n)
	return n, err
}

func (s *Storage) ListJobsByReminder(reminderID int64) ([]*domain.Job, error) {
	rows, err := s.db.Query(
		`SELECT id, type, key, reminder_id, occurrence_at, run_at, attempts, locked_until, created_at
		 FROM jobs WHERE reminder_id = ? ORDER BY run_at ASC`,
		reminderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j := &domain.Job{}
		if err := rows.Scan(&j.ID, &j.Type, &j.Key, &j.ReminderID, &j.OccurrenceAt,
			&j.RunAt, &j.Attempts, &j.LockedUntil, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.OccurrenceAt = j.OccurrenceAt.UTC()
		j.RunAt = j.RunAt.UTC()
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
