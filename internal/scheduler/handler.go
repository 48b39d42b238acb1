package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reminderd/internal/domain"
	"reminderd/internal/notify"
	"reminderd/internal/queue"
)

// driftTolerance is how far in the future a recomputed occurrence may sit
// before the job is treated as stale rather than due.
const driftTolerance = 5 * time.Minute

// Handler consumes fire jobs. Each job ends in exactly one of three ways:
// fired, dropped because the reminder is gone, or replaced by a fresh job
// at the corrected instant when the schedule has drifted.
type Handler struct {
	sched    *Scheduler
	store    ReminderStore
	notifier notify.Notifier
	clk      clock.Clock
	logger   *zap.SugaredLogger
}

func NewHandler(sched *Scheduler, store ReminderStore, notifier notify.Notifier, clk clock.Clock, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		sched:    sched,
		store:    store,
		notifier: notifier,
		clk:      clk,
		logger:   logger,
	}
}

// Register wires the handler into the queue.
func (h *Handler) Register(q *queue.Queue) {
	q.Define(JobTypeFire, h.HandleFire)
}

// HandleFire processes one due occurrence. Only the reminder id and the
// occurrence instant are trusted from the job; everything else is re-read
// from storage, since any field may have changed since the job was queued.
func (h *Handler) HandleFire(ctx context.Context, job *domain.Job) error {
	rem, err := h.store.GetReminder(job.ReminderID)
	if err != nil {
		return fmt.Errorf("fetch reminder %d: %w", job.ReminderID, err)
	}

	if rem == nil || rem.IsDeleted {
		// Expected under eventual consistency between cancellation and
		// in-flight jobs. Clean up whatever else is still pending.
		if _, cancelErr := h.sched.CancelJobsForReminder(ctx, job.ReminderID); cancelErr != nil {
			return cancelErr
		}
		h.logger.Infow("dropped job for missing or deleted reminder",
			"reminder", job.ReminderID, "occurrence", job.OccurrenceAt)
		return nil
	}

	now := h.clk.Now().UTC()

	// Recompute the intended instant from current state. If the reminder's
	// timezone or anchor changed after this job was queued, the nearest
	// occurrence under the current rule lands somewhere else.
	intended := h.sched.expander.Next(rem, job.OccurrenceAt.Add(-driftTolerance))
	if !intended.IsZero() && intended.After(now.Add(driftTolerance)) {
		err := h.sched.queue.Create(JobTypeFire, rem.ID, intended).
			Unique(JobKey(rem.ID, intended)).
			Schedule(intended).
			Save(ctx)
		if err != nil {
			return err
		}
		h.logger.Infow("schedule drift detected, job replaced",
			"reminder", rem.ID, "was", job.OccurrenceAt, "corrected", intended)
		return nil
	}

	if rem.LastSentAt != nil && !rem.LastSentAt.Before(job.OccurrenceAt) {
		h.logger.Infow("occurrence already delivered, notification skipped",
			"reminder", rem.ID, "occurrence", job.OccurrenceAt, "last_sent", rem.LastSentAt)
	} else {
		msg := notify.Message{
			Title:        rem.Title,
			Body:         rem.Body,
			ReminderID:   rem.ID,
			OccurrenceAt: job.OccurrenceAt,
		}
		if err := h.notifier.Notify(ctx, rem.UserID, msg); err != nil {
			// Surfaced to the queue's retry policy; a swallowed failure
			// here is a permanently missed reminder with no trace.
			return fmt.Errorf("notify user %d for reminder %d: %w", rem.UserID, rem.ID, err)
		}
		if err := h.store.UpdateReminderLastSent(rem.ID, now); err != nil {
			return fmt.Errorf("persist last sent for reminder %d: %w", rem.ID, err)
		}
		h.logger.Infow("reminder fired", "reminder", rem.ID, "user", rem.UserID, "occurrence", job.OccurrenceAt)
	}

	// Recurring series continue by enqueueing the next horizon from here.
	// The unique keys make this idempotent against jobs already queued.
	if rem.Recurs() {
		if err := h.sched.ScheduleOccurrences(ctx, rem, h.sched.horizonDays); err != nil {
			return fmt.Errorf("extend horizon for reminder %d: %w", rem.ID, err)
		}
	}
	return nil
}
