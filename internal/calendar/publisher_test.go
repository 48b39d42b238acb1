package calendar

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"reminderd/internal/domain"
)

func testReminder(rec domain.Recurrence) *domain.Reminder {
	return &domain.Reminder{
		ID:          7,
		UserID:      42,
		Title:       "team sync",
		Body:        "weekly agenda",
		ScheduledAt: time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC), // Monday
		Timezone:    "America/New_York",
		Recurrence:  rec,
	}
}

func TestRecurrenceRule(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.Recurrence
		want string
	}{
		{"one shot", domain.Recurrence{Cadence: domain.CadenceNone}, ""},
		{"daily", domain.Recurrence{Cadence: domain.CadenceDaily, Interval: 1}, "FREQ=DAILY;INTERVAL=1"},
		{"daily interval", domain.Recurrence{Cadence: domain.CadenceDaily, Interval: 3}, "FREQ=DAILY;INTERVAL=3"},
		{"daily zero interval clamped", domain.Recurrence{Cadence: domain.CadenceDaily}, "FREQ=DAILY;INTERVAL=1"},
		{
			"weekly with days",
			domain.Recurrence{Cadence: domain.CadenceWeekly, Interval: 1, DaysOfWeek: []int{1, 3, 5}},
			"FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE,FR",
		},
		{
			"weekly sunday and saturday",
			domain.Recurrence{Cadence: domain.CadenceWeekly, Interval: 2, DaysOfWeek: []int{0, 6}},
			"FREQ=WEEKLY;INTERVAL=2;BYDAY=SU,SA",
		},
		{
			// No day selection: the anchor's local weekday. 13:00Z on
			// 2024-06-03 is Monday morning in New York.
			"weekly without days",
			domain.Recurrence{Cadence: domain.CadenceWeekly, Interval: 1},
			"FREQ=WEEKLY;INTERVAL=1;BYDAY=MO",
		},
		{
			"custom passthrough",
			domain.Recurrence{Cadence: domain.CadenceCustom, CustomRule: "FREQ=MONTHLY;BYMONTHDAY=15"},
			"FREQ=MONTHLY;BYMONTHDAY=15",
		},
		{
			"custom strips prefix",
			domain.Recurrence{Cadence: domain.CadenceCustom, CustomRule: "RRULE:FREQ=MONTHLY;BYMONTHDAY=15"},
			"FREQ=MONTHLY;BYMONTHDAY=15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recurrenceRule(testReminder(tt.rec)); got != tt.want {
				t.Errorf("recurrenceRule() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReminderToICS(t *testing.T) {
	rem := testReminder(domain.Recurrence{Cadence: domain.CadenceWeekly, Interval: 1, DaysOfWeek: []int{1}})
	cal := reminderToICS(rem)

	if len(cal.Children) != 1 {
		t.Fatalf("calendar has %d components, want 1", len(cal.Children))
	}
	ev := cal.Children[0]
	if ev.Name != ical.CompEvent {
		t.Fatalf("component is %s, want VEVENT", ev.Name)
	}

	uid, err := ev.Props.Text(ical.PropUID)
	if err != nil || uid != "reminder-7" {
		t.Errorf("UID = %q (%v), want reminder-7", uid, err)
	}
	summary, _ := ev.Props.Text(ical.PropSummary)
	if summary != "team sync" {
		t.Errorf("SUMMARY = %q", summary)
	}
	desc, _ := ev.Props.Text(ical.PropDescription)
	if desc != "weekly agenda" {
		t.Errorf("DESCRIPTION = %q", desc)
	}
	rule, _ := ev.Props.Text(ical.PropRecurrenceRule)
	if rule != "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO" {
		t.Errorf("RRULE = %q", rule)
	}

	dtstart, err := ev.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !dtstart.Equal(rem.ScheduledAt) {
		t.Errorf("DTSTART = %v, want %v", dtstart, rem.ScheduledAt)
	}
}

func TestEventPath(t *testing.T) {
	p := NewPublisher("https://dav.example.net", "u", "p", "/calendars/u/reminders")
	rem := testReminder(domain.Recurrence{})
	if got, want := p.eventPath(rem), "/calendars/u/reminders/reminder-7.ics"; got != want {
		t.Errorf("eventPath = %q, want %q", got, want)
	}

	p = NewPublisher("https://dav.example.net", "u", "p", "/calendars/u/reminders/")
	if got, want := p.eventPath(rem), "/calendars/u/reminders/reminder-7.ics"; got != want {
		t.Errorf("eventPath = %q, want %q", got, want)
	}
}
