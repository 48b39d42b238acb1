package domain

import "time"

// Job is one pending promise to fire a reminder at a specific occurrence.
// Only ReminderID and OccurrenceAt are trustworthy at fire time; everything
// else about the reminder must be re-read from storage.
type Job struct {
	ID           int64
	Type         string
	Key          string // unique scheduling key: "<reminderID>@<occurrence RFC3339>"
	ReminderID   int64
	OccurrenceAt time.Time // the intended firing instant (UTC)
	RunAt        time.Time
	Attempts     int
	LockedUntil  *time.Time
	CreatedAt    time.Time
}
