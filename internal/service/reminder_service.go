package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reminderd/internal/domain"
	"reminderd/internal/timezone"
)

// Store is the reminder persistence the service mutates.
type Store interface {
	CreateReminder(r *domain.Reminder) error
	GetReminder(id int64) (*domain.Reminder, error)
	UpdateReminder(r *domain.Reminder) error
	SoftDeleteReminder(id int64, at time.Time) error
	ListRemindersByUser(userID int64) ([]*domain.Reminder, error)
}

// Rescheduler rebuilds the job schedule after a reminder mutation.
type Rescheduler interface {
	RescheduleReminder(ctx context.Context, rem *domain.Reminder) error
}

// Publisher mirrors reminders to an external calendar. Optional; publish
// failures never fail the mutation.
type Publisher interface {
	Publish(ctx context.Context, rem *domain.Reminder) error
	Remove(ctx context.Context, rem *domain.Reminder) error
}

type ReminderService struct {
	store     Store
	sched     Rescheduler
	publisher Publisher
	clk       clock.Clock
	logger    *zap.SugaredLogger
}

func NewReminderService(store Store, sched Rescheduler, publisher Publisher, clk clock.Clock, logger *zap.SugaredLogger) *ReminderService {
	return &ReminderService{
		store:     store,
		sched:     sched,
		publisher: publisher,
		clk:       clk,
		logger:    logger,
	}
}

// ReminderInput carries the mutable fields of a reminder. ScheduledAt and
// AnchorDate accept RFC3339 timestamps or date-only YYYY-MM-DD strings;
// date-only values mean local midnight in the reminder's zone.
type ReminderInput struct {
	Title       string
	Body        string
	ScheduledAt string
	Timezone    string
	Cadence     domain.Cadence
	Interval    int
	DaysOfWeek  []int
	AnchorDate  string
	CustomRule  string
}

func (s *ReminderService) Create(ctx context.Context, userID int64, in ReminderInput) (*domain.Reminder, error) {
	rem := &domain.Reminder{UserID: userID}
	if err := s.apply(rem, in); err != nil {
		return nil, err
	}

	if err := s.store.CreateReminder(rem); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	// A reminder whose jobs cannot be scheduled must fail the create, not
	// silently exist with no schedule.
	if err := s.sched.RescheduleReminder(ctx, rem); err != nil {
		return nil, err
	}

	s.publish(ctx, rem)
	return rem, nil
}

func (s *ReminderService) Update(ctx context.Context, id int64, in ReminderInput) (*domain.Reminder, error) {
	rem, err := s.store.GetReminder(id)
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	if rem == nil || rem.IsDeleted {
		return nil, fmt.Errorf("reminder %d not found", id)
	}

	if err := s.apply(rem, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateReminder(rem); err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}

	if err := s.sched.RescheduleReminder(ctx, rem); err != nil {
		return nil, err
	}

	s.publish(ctx, rem)
	return rem, nil
}

// Delete soft-deletes the reminder and cancels its pending jobs. The row
// stays so a late-firing job can still observe the deletion.
func (s *ReminderService) Delete(ctx context.Context, id int64) error {
	rem, err := s.store.GetReminder(id)
	if err != nil {
		return fmt.Errorf("get reminder: %w", err)
	}
	if rem == nil || rem.IsDeleted {
		return fmt.Errorf("reminder %d not found", id)
	}

	now := s.clk.Now().UTC()
	if err := s.store.SoftDeleteReminder(id, now); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	rem.IsDeleted = true
	rem.DeletedAt = &now

	// Rescheduling a deleted reminder cancels and schedules nothing.
	if err := s.sched.RescheduleReminder(ctx, rem); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.Remove(ctx, rem); err != nil {
			s.logger.Warnw("calendar remove failed", "reminder", rem.ID, "err", err)
		}
	}
	return nil
}

func (s *ReminderService) Get(id int64) (*domain.Reminder, error) {
	return s.store.GetReminder(id)
}

func (s *ReminderService) List(userID int64) ([]*domain.Reminder, error) {
	return s.store.ListRemindersByUser(userID)
}

// apply validates the input and writes it onto rem.
func (s *ReminderService) apply(rem *domain.Reminder, in ReminderInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return fmt.Errorf("reminder title cannot be empty")
	}

	tzName := in.Timezone
	loc, ok := timezone.Ensure(tzName)
	if !ok {
		if tzName != "" {
			s.logger.Warnw("invalid timezone, falling back to UTC", "tz", tzName)
		}
		tzName = "UTC"
	}

	scheduledAt, err := timezone.ParseDateInput(in.ScheduledAt, loc, nil)
	if err != nil {
		return fmt.Errorf("invalid scheduled time: %w", err)
	}

	cadence := in.Cadence
	if cadence == "" {
		cadence = domain.CadenceNone
	}
	if !cadence.Valid() {
		return fmt.Errorf("unknown cadence %q", in.Cadence)
	}

	interval := in.Interval
	if interval == 0 {
		interval = domain.MinInterval
	}
	if interval < domain.MinInterval || interval > domain.MaxInterval {
		return fmt.Errorf("interval must be between %d and %d", domain.MinInterval, domain.MaxInterval)
	}

	for _, d := range in.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week %d out of range 0-6", d)
		}
	}

	var anchor *time.Time
	if in.AnchorDate != "" {
		a, err := timezone.ParseDateInput(in.AnchorDate, loc, nil)
		if err != nil {
			return fmt.Errorf("invalid anchor date: %w", err)
		}
		anchor = &a
	}

	rem.Title = title
	rem.Body = in.Body
	rem.ScheduledAt = scheduledAt
	rem.Timezone = tzName
	rem.Recurrence = domain.Recurrence{
		Cadence:    cadence,
		Interval:   interval,
		DaysOfWeek: in.DaysOfWeek,
		AnchorDate: anchor,
		CustomRule: in.CustomRule,
	}
	return nil
}

func (s *ReminderService) publish(ctx context.Context, rem *domain.Reminder) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rem); err != nil {
		s.logger.Warnw("calendar publish failed", "reminder", rem.ID, "err", err)
	}
}
