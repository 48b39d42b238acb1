// Package notify defines the notification sink the fire handler writes to.
// Delivery is fire-and-forget from the scheduler's point of view: a sink
// error fails the job once, after which the queue's retry policy owns it.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Message is one reminder notification.
type Message struct {
	Title        string
	Body         string
	ReminderID   int64
	OccurrenceAt time.Time
}

// Notifier delivers a message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, msg Message) error
}

// Log is a sink that only logs, used when no transport is configured.
type Log struct {
	Logger *zap.SugaredLogger
}

func (l *Log) Notify(_ context.Context, userID int64, msg Message) error {
	l.Logger.Infow("reminder notification",
		"user", userID, "reminder", msg.ReminderID, "title", msg.Title, "occurrence", msg.OccurrenceAt)
	return nil
}
