package domain

import (
	"strconv"
	"strings"
	"time"
)

// Cadence is the recurrence family of a reminder.
type Cadence string

const (
	CadenceNone   Cadence = "none"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceCustom Cadence = "custom"
)

// Valid reports whether c is one of the known cadences.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceNone, CadenceDaily, CadenceWeekly, CadenceCustom:
		return true
	}
	return false
}

const (
	MinInterval = 1
	MaxInterval = 365
)

// Recurrence describes how a reminder repeats.
type Recurrence struct {
	Cadence    Cadence
	Interval   int   // every Nth day/week, 1..365
	DaysOfWeek []int // 0-6 (Sunday=0), weekly cadence only
	AnchorDate *time.Time
	CustomRule string // opaque rule string for the custom cadence
}

// Reminder is the persisted reminder document. Soft-deleted rows are kept;
// once IsDeleted is set no further jobs may ever be scheduled for the id.
type Reminder struct {
	ID          int64
	UserID      int64
	Title       string
	Body        string
	ScheduledAt time.Time // absolute UTC instant of the first/reference occurrence
	Timezone    string    // IANA zone name; invalid values fall back to UTC
	Recurrence  Recurrence
	IsDeleted   bool
	DeletedAt   *time.Time
	LastSentAt  *time.Time
	CreatedAt   time.Time
}

// Anchor returns the instant occurrence calculations offset from.
// Defaults to ScheduledAt when no explicit anchor is set.
func (r *Reminder) Anchor() time.Time {
	if r.Recurrence.AnchorDate != nil && !r.Recurrence.AnchorDate.IsZero() {
		return *r.Recurrence.AnchorDate
	}
	return r.ScheduledAt
}

// Recurs reports whether the reminder produces more than one occurrence.
func (r *Reminder) Recurs() bool {
	return r.Recurrence.Cadence != "" && r.Recurrence.Cadence != CadenceNone
}

// EncodeDays renders a days-of-week set as a comma-separated string
// for storage, e.g. "1,3,5".
func EncodeDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// DecodeDays parses a comma-separated days-of-week string. Malformed
// entries are skipped.
func DecodeDays(s string) []int {
	if s == "" {
		return nil
	}
	var days []int
	for _, p := range strings.Split(s, ",") {
		if d, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			days = append(days, d)
		}
	}
	return days
}
