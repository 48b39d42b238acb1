// Package timezone holds the wall-clock/UTC conversion primitives shared by
// the recurrence expander and the fire handler. Both sides must go through
// this package; divergent zone math between scheduling and firing is the
// classic source of off-by-one-hour reminders.
package timezone

import (
	"fmt"
	"regexp"
	"time"
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Parts is a local calendar/clock instant without a zone.
type Parts struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Ensure validates an IANA zone name. Invalid or empty names fall back to
// UTC with ok=false so callers can warn; a reminder with a broken zone
// still schedules rather than erroring out.
func Ensure(name string) (*time.Location, bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// Offset returns the offset of loc from UTC in minutes at the given
// instant, positive east of UTC. Computed per instant: the offset changes
// across DST boundaries, so it must never be cached statically.
func Offset(loc *time.Location, at time.Time) int {
	_, secs := at.In(loc).Zone()
	return secs / 60
}

// LocalPartsToUTC interprets p as wall-clock time in loc and returns the
// equivalent absolute UTC instant. time.Date resolves the zone offset for
// the instant itself, so DST transitions land on the correct side; inputs
// inside a spring-forward gap normalize forward, which is the accepted
// edge case.
func LocalPartsToUTC(p Parts, loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, p.Day, p.Hour, p.Minute, p.Second, 0, loc).UTC()
}

// UTCToLocalParts breaks an absolute instant into wall-clock fields in loc.
func UTCToLocalParts(t time.Time, loc *time.Location) Parts {
	lt := t.In(loc)
	return Parts{
		Year:   lt.Year(),
		Month:  lt.Month(),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
		Second: lt.Second(),
	}
}

// IsDateOnly reports whether s is exactly YYYY-MM-DD with no time component.
func IsDateOnly(s string) bool {
	return dateOnlyRe.MatchString(s)
}

// ParseDateInput parses either an absolute RFC3339 timestamp (returned
// as-is in UTC) or a date-only YYYY-MM-DD string, which is interpreted as
// local midnight in loc, or at the override time-of-day when supplied.
func ParseDateInput(input string, loc *time.Location, override *Parts) (time.Time, error) {
	if IsDateOnly(input) {
		d, err := time.Parse("2006-01-02", input)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", input, err)
		}
		p := Parts{Year: d.Year(), Month: d.Month(), Day: d.Day()}
		if override != nil {
			p.Hour = override.Hour
			p.Minute = override.Minute
			p.Second = override.Second
		}
		return LocalPartsToUTC(p, loc), nil
	}

	t, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", input, err)
	}
	return t.UTC(), nil
}
