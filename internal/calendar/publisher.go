// Package calendar mirrors active reminders to a CalDAV calendar as
// recurring VEVENTs, so a user's regular calendar client shows the same
// schedule the job queue fires.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"reminderd/internal/domain"
	"reminderd/internal/timezone"
)

var weekdayNames = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Publisher pushes reminder events to a CalDAV collection.
type Publisher struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	client       *caldav.Client
}

func NewPublisher(baseURL, username, password, calendarPath string) *Publisher {
	return &Publisher{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarPath: calendarPath,
	}
}

func (p *Publisher) connect() (*caldav.Client, error) {
	if p.client != nil {
		return p.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{username: p.username, password: p.password},
		Timeout:   30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	p.client = client
	return client, nil
}

type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// Publish creates or replaces the reminder's event (PUT replaces).
func (p *Publisher) Publish(ctx context.Context, rem *domain.Reminder) error {
	client, err := p.connect()
	if err != nil {
		return err
	}

	cal := reminderToICS(rem)
	if _, err := client.PutCalendarObject(ctx, p.eventPath(rem), cal); err != nil {
		return fmt.Errorf("publish reminder event: %w", err)
	}
	return nil
}

// Remove deletes the reminder's event from the calendar.
func (p *Publisher) Remove(ctx context.Context, rem *domain.Reminder) error {
	client, err := p.connect()
	if err != nil {
		return err
	}

	if err := client.RemoveAll(ctx, p.eventPath(rem)); err != nil {
		return fmt.Errorf("remove reminder event: %w", err)
	}
	return nil
}

func (p *Publisher) eventPath(rem *domain.Reminder) string {
	path := p.calendarPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path + eventUID(rem) + ".ics"
}

func eventUID(rem *domain.Reminder) string {
	return fmt.Sprintf("reminder-%d", rem.ID)
}

// reminderToICS renders the reminder as a single VEVENT whose RRULE
// carries the recurrence, rather than one VEVENT per materialized
// occurrence.
func reminderToICS(rem *domain.Reminder) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//reminderd//CalDAV//EN")

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, eventUID(rem))
	vevent.Props.SetText(ical.PropSummary, rem.Title)
	if rem.Body != "" {
		vevent.Props.SetText(ical.PropDescription, rem.Body)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStart, rem.Anchor().UTC())
	if rule := recurrenceRule(rem); rule != "" {
		vevent.Props.SetText(ical.PropRecurrenceRule, rule)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

// recurrenceRule maps the reminder's rule to an RRULE string. The empty
// string means a one-shot event.
func recurrenceRule(rem *domain.Reminder) string {
	rec := rem.Recurrence
	interval := rec.Interval
	if interval < domain.MinInterval {
		interval = domain.MinInterval
	}

	switch rec.Cadence {
	case domain.CadenceDaily:
		return fmt.Sprintf("FREQ=DAILY;INTERVAL=%d", interval)
	case domain.CadenceWeekly:
		rule := fmt.Sprintf("FREQ=WEEKLY;INTERVAL=%d", interval)
		if len(rec.DaysOfWeek) > 0 {
			var days []string
			for _, d := range rec.DaysOfWeek {
				if d >= 0 && d <= 6 {
					days = append(days, weekdayNames[d])
				}
			}
			if len(days) > 0 {
				rule += ";BYDAY=" + strings.Join(days, ",")
			}
		} else {
			loc, _ := timezone.Ensure(rem.Timezone)
			rule += ";BYDAY=" + weekdayNames[int(rem.Anchor().In(loc).Weekday())]
		}
		return rule
	case domain.CadenceCustom:
		return strings.TrimPrefix(rec.CustomRule, "RRULE:")
	default:
		return ""
	}
}
