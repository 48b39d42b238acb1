package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reminderd/internal/domain"
)

type fakeStore struct {
	nextID    int64
	reminders map[int64]*domain.Reminder
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reminders: make(map[int64]*domain.Reminder)}
}

func (s *fakeStore) CreateReminder(r *domain.Reminder) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	r.ID = s.nextID
	cp := *r
	s.reminders[r.ID] = &cp
	return nil
}

func (s *fakeStore) GetReminder(id int64) (*domain.Reminder, error) {
	r, ok := s.reminders[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) UpdateReminder(r *domain.Reminder) error {
	cp := *r
	s.reminders[r.ID] = &cp
	return nil
}

func (s *fakeStore) SoftDeleteReminder(id int64, at time.Time) error {
	r, ok := s.reminders[id]
	if !ok {
		return errors.New("no such reminder")
	}
	at = at.UTC()
	r.IsDeleted = true
	r.DeletedAt = &at
	return nil
}

func (s *fakeStore) ListRemindersByUser(userID int64) ([]*domain.Reminder, error) {
	var out []*domain.Reminder
	for _, r := range s.reminders {
		if r.UserID == userID && !r.IsDeleted {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRescheduler struct {
	calls []*domain.Reminder
	err   error
}

func (f *fakeRescheduler) RescheduleReminder(_ context.Context, rem *domain.Reminder) error {
	if f.err != nil {
		return f.err
	}
	cp := *rem
	f.calls = append(f.calls, &cp)
	return nil
}

type fakePublisher struct {
	published []int64
	removed   []int64
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, rem *domain.Reminder) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, rem.ID)
	return nil
}

func (f *fakePublisher) Remove(_ context.Context, rem *domain.Reminder) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, rem.ID)
	return nil
}

func newService(store *fakeStore, sched *fakeRescheduler, pub Publisher) *ReminderService {
	clk := clock.NewFake()
	clk.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewReminderService(store, sched, pub, clk, zap.NewNop().Sugar())
}

func validInput() ReminderInput {
	return ReminderInput{
		Title:       "dentist",
		Body:        "bring insurance card",
		ScheduledAt: "2024-06-10T09:00:00-04:00",
		Timezone:    "America/New_York",
		Cadence:     domain.CadenceNone,
	}
}

func TestCreate(t *testing.T) {
	store := newFakeStore()
	sched := &fakeRescheduler{}
	pub := &fakePublisher{}
	svc := newService(store, sched, pub)

	rem, err := svc.Create(context.Background(), 42, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if rem.ID == 0 {
		t.Error("no id assigned")
	}
	if rem.UserID != 42 || rem.Title != "dentist" {
		t.Errorf("got %+v", rem)
	}
	if want := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC); !rem.ScheduledAt.Equal(want) {
		t.Errorf("ScheduledAt = %v, want %v", rem.ScheduledAt, want)
	}
	if len(sched.calls) != 1 || sched.calls[0].ID != rem.ID {
		t.Errorf("rescheduler calls = %v", sched.calls)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %v", pub.published)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReminderInput)
	}{
		{"empty title", func(in *ReminderInput) { in.Title = "  " }},
		{"bad scheduled time", func(in *ReminderInput) { in.ScheduledAt = "tomorrow-ish" }},
		{"unknown cadence", func(in *ReminderInput) { in.Cadence = "hourly" }},
		{"interval too small", func(in *ReminderInput) { in.Cadence = domain.CadenceDaily; in.Interval = -1 }},
		{"interval too large", func(in *ReminderInput) { in.Cadence = domain.CadenceDaily; in.Interval = 366 }},
		{"day of week out of range", func(in *ReminderInput) {
			in.Cadence = domain.CadenceWeekly
			in.DaysOfWeek = []int{1, 7}
		}},
		{"bad anchor date", func(in *ReminderInput) { in.AnchorDate = "06/10/2024" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			sched := &fakeRescheduler{}
			svc := newService(store, sched, nil)

			in := validInput()
			tt.mutate(&in)
			if _, err := svc.Create(context.Background(), 42, in); err == nil {
				t.Error("expected validation error")
			}
			if len(store.reminders) != 0 {
				t.Error("invalid reminder was persisted")
			}
		})
	}
}

func TestCreateInvalidTimezoneFallsBackToUTC(t *testing.T) {
	svc := newService(newFakeStore(), &fakeRescheduler{}, nil)

	in := validInput()
	in.Timezone = "Mars/Olympus_Mons"
	in.ScheduledAt = "2024-06-10"

	rem, err := svc.Create(context.Background(), 42, in)
	if err != nil {
		t.Fatal(err)
	}
	if rem.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", rem.Timezone)
	}
	// Date-only input means local midnight, here UTC midnight.
	if want := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC); !rem.ScheduledAt.Equal(want) {
		t.Errorf("ScheduledAt = %v, want %v", rem.ScheduledAt, want)
	}
}

func TestCreateDateOnlyUsesLocalMidnight(t *testing.T) {
	svc := newService(newFakeStore(), &fakeRescheduler{}, nil)

	in := validInput()
	in.ScheduledAt = "2024-06-10" // midnight America/New_York == 04:00Z

	rem, err := svc.Create(context.Background(), 42, in)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 6, 10, 4, 0, 0, 0, time.UTC); !rem.ScheduledAt.Equal(want) {
		t.Errorf("ScheduledAt = %v, want %v", rem.ScheduledAt, want)
	}
}

func TestCreateFailsWhenScheduleFails(t *testing.T) {
	store := newFakeStore()
	sched := &fakeRescheduler{err: errors.New("job store down")}
	svc := newService(store, sched, nil)

	if _, err := svc.Create(context.Background(), 42, validInput()); err == nil {
		t.Fatal("expected scheduling failure to fail the create")
	}
}

func TestCreatePublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("caldav 500")}
	svc := newService(newFakeStore(), &fakeRescheduler{}, pub)

	if _, err := svc.Create(context.Background(), 42, validInput()); err != nil {
		t.Fatalf("publish failure leaked into create: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	store := newFakeStore()
	sched := &fakeRescheduler{}
	svc := newService(store, sched, nil)

	rem, err := svc.Create(context.Background(), 42, validInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validInput()
	in.Title = "dentist (moved)"
	in.Cadence = domain.CadenceWeekly
	in.Interval = 1
	in.DaysOfWeek = []int{2}

	updated, err := svc.Update(context.Background(), rem.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "dentist (moved)" || updated.Recurrence.Cadence != domain.CadenceWeekly {
		t.Errorf("got %+v", updated)
	}

	stored, _ := store.GetReminder(rem.ID)
	if stored.Title != "dentist (moved)" {
		t.Error("update not persisted")
	}
	// Create plus update both rebuild the schedule.
	if len(sched.calls) != 2 {
		t.Errorf("rescheduler called %d times, want 2", len(sched.calls))
	}
}

func TestUpdateMissing(t *testing.T) {
	svc := newService(newFakeStore(), &fakeRescheduler{}, nil)
	if _, err := svc.Update(context.Background(), 99, validInput()); err == nil {
		t.Error("expected error for missing reminder")
	}
}

func TestDelete(t *testing.T) {
	store := newFakeStore()
	sched := &fakeRescheduler{}
	pub := &fakePublisher{}
	svc := newService(store, sched, pub)

	rem, err := svc.Create(context.Background(), 42, validInput())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(context.Background(), rem.ID); err != nil {
		t.Fatal(err)
	}

	stored, _ := store.GetReminder(rem.ID)
	if stored == nil || !stored.IsDeleted {
		t.Fatalf("got %+v, want soft-deleted row", stored)
	}
	if stored.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}

	// The reschedule after deletion is what cancels pending jobs.
	if len(sched.calls) != 2 || !sched.calls[1].IsDeleted {
		t.Errorf("rescheduler calls = %+v", sched.calls)
	}
	if len(pub.removed) != 1 {
		t.Errorf("removed %v", pub.removed)
	}

	// Deleting twice is an error, not a silent no-op.
	if err := svc.Delete(context.Background(), rem.ID); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestListExcludesDeleted(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeRescheduler{}, nil)

	a, _ := svc.Create(context.Background(), 42, validInput())
	b, err := svc.Create(context.Background(), 42, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}

	got, err := svc.List(42)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("listed %+v, want only reminder %d", got, b.ID)
	}
}
