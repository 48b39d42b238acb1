// Package scheduler bridges reminder documents to the job queue: it
// materializes occurrences into uniquely-keyed jobs inside a rolling
// horizon, and processes those jobs when they come due.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reminderd/internal/domain"
	"reminderd/internal/queue"
	"reminderd/internal/recurrence"
)

// JobTypeFire is the queue job type for firing one reminder occurrence.
const JobTypeFire = "reminder:fire"

// DefaultHorizonDays bounds how far ahead occurrences are materialized.
// Recurrence past the horizon is picked up by the fire handler's
// self-continuation and by the periodic refresh, never by pre-creating an
// unbounded series of jobs.
const DefaultHorizonDays = 30

// ReminderStore is the slice of persistence the scheduler needs.
type ReminderStore interface {
	GetReminder(id int64) (*domain.Reminder, error)
	UpdateReminderLastSent(id int64, at time.Time) error
	ListActiveReminders() ([]*domain.Reminder, error)
}

type Scheduler struct {
	store       ReminderStore
	queue       *queue.Queue
	expander    *recurrence.Expander
	clk         clock.Clock
	logger      *zap.SugaredLogger
	horizonDays int
}

func New(store ReminderStore, q *queue.Queue, exp *recurrence.Expander, clk clock.Clock, logger *zap.SugaredLogger, horizonDays int) *Scheduler {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Scheduler{
		store:       store,
		queue:       q,
		expander:    exp,
		clk:         clk,
		logger:      logger,
		horizonDays: horizonDays,
	}
}

// JobKey is the idempotent scheduling key for one (reminder, occurrence)
// pair. Re-scheduling the same pair is a no-op in the queue.
func JobKey(reminderID int64, occ time.Time) string {
	return fmt.Sprintf("%d@%s", reminderID, occ.UTC().Format(time.RFC3339))
}

// ScheduleOccurrences enqueues one job per occurrence in
// [now, now+horizonDays). Occurrences already queued are skipped by the
// unique key, so calling this repeatedly never duplicates jobs.
func (s *Scheduler) ScheduleOccurrences(ctx context.Context, rem *domain.Reminder, horizonDays int) error {
	if rem.IsDeleted {
		s.logger.Warnw("refusing to schedule deleted reminder", "reminder", rem.ID)
		return nil
	}
	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}

	now := s.clk.Now().UTC()
	occs := s.expander.Expand(rem, now, now.Add(time.Duration(horizonDays)*24*time.Hour))

	for _, occ := range occs {
		err := s.queue.Create(JobTypeFire, rem.ID, occ).
			Unique(JobKey(rem.ID, occ)).
			Schedule(occ).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("schedule reminder %d: %w", rem.ID, err)
		}
	}

	s.logger.Debugw("occurrences scheduled", "reminder", rem.ID, "count", len(occs), "horizon_days", horizonDays)
	return nil
}

// CancelJobsForReminder removes every pending job for the reminder id.
func (s *Scheduler) CancelJobsForReminder(ctx context.Context, reminderID int64) (int64, error) {
	return s.queue.CancelForReminder(ctx, reminderID)
}

// RescheduleReminder is the composite operation the CRUD layer calls on
// every create, update and delete. Cancellation always runs first so a
// changed rule can't leave stale jobs behind; scheduling is skipped for
// soft-deleted reminders, which correctly leaves zero future jobs.
func (s *Scheduler) RescheduleReminder(ctx context.Context, rem *domain.Reminder) error {
	n, err := s.CancelJobsForReminder(ctx, rem.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debugw("pending jobs cancelled", "reminder", rem.ID, "count", n)
	}

	if rem.IsDeleted {
		s.logger.Infow("reminder deleted, schedule cleared", "reminder", rem.ID)
		return nil
	}
	return s.ScheduleOccurrences(ctx, rem, s.horizonDays)
}

// RefreshHorizons re-extends the rolling horizon for every active
// reminder. Self-continuation on firing covers rules dense enough to fire
// within each horizon; this periodic pass covers the sparse ones.
func (s *Scheduler) RefreshHorizons(ctx context.Context) error {
	reminders, err := s.store.ListActiveReminders()
	if err != nil {
		return fmt.Errorf("list active reminders: %w", err)
	}

	var failed int
	for _, rem := range reminders {
		if err := s.ScheduleOccurrences(ctx, rem, s.horizonDays); err != nil {
			failed++
			s.logger.Errorw("horizon refresh failed for reminder", "reminder", rem.ID, "err", err)
		}
	}

	s.logger.Infow("horizon refresh complete", "reminders", len(reminders), "failed", failed)
	return nil
}
