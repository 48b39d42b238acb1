// Package queue is a durable, uniquely-keyed job queue with delayed
// execution, at-least-once delivery and a bounded worker pool. Jobs live in
// the job store until consumed; a per-job lease lets a crashed worker's job
// be retried by another worker once the lease lapses.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"reminderd/internal/domain"
)

// ErrStoreUnavailable marks job-store I/O failures. Callers in the CRUD
// path must fail the whole mutation on it rather than report success with
// no schedule.
var ErrStoreUnavailable = errors.New("job store unavailable")

// HandlerFunc processes one job. A returned error surfaces to the queue's
// retry policy; it must never be swallowed by the handler itself.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// JobStore is the persistence surface the queue runs on.
type JobStore interface {
	InsertJob(ctx context.Context, j *domain.Job) (bool, error)
	DeleteJobsByReminder(ctx context.Context, reminderID int64) (int64, error)
	DeleteJob(id int64) error
	ClaimDueJobs(now, lockUntil time.Time, limit int) ([]*domain.Job, error)
	ReleaseJob(id int64, attempts int, nextRun time.Time) error
}

const (
	defaultConcurrency = 5
	lockLifetime       = 10 * time.Minute
	claimBatch         = 50
	maxAttempts        = 5
	retryBackoff       = time.Minute
)

type Queue struct {
	store   JobStore
	clk     clock.Clock
	logger  *zap.SugaredLogger
	cron    *cron.Cron
	sem     chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	baseCtx context.Context

	handlers map[string]HandlerFunc
}

func New(store JobStore, clk clock.Clock, logger *zap.SugaredLogger) *Queue {
	return &Queue{
		store:    store,
		clk:      clk,
		logger:   logger,
		cron:     cron.New(),
		sem:      make(chan struct{}, defaultConcurrency),
		baseCtx:  context.Background(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Define registers the handler for a job type. Jobs of an unregistered
// type are dropped with an error log when they come due.
func (q *Queue) Define(jobType string, h HandlerFunc) {
	q.mu.Lock()
	q.handlers[jobType] = h
	q.mu.Unlock()
}

// Create starts building a job. Every code path that creates a job goes
// through the same builder so the unique-key discipline holds everywhere.
func (q *Queue) Create(jobType string, reminderID int64, occurrenceAt time.Time) *Builder {
	return &Builder{
		q: q,
		job: domain.Job{
			Type:         jobType,
			ReminderID:   reminderID,
			OccurrenceAt: occurrenceAt.UTC(),
		},
	}
}

// Builder accumulates job fields before Save.
type Builder struct {
	q   *Queue
	job domain.Job
}

// Unique sets the idempotency key. Saving a key that already exists is a
// no-op, not an error and not a duplicate.
func (b *Builder) Unique(key string) *Builder {
	b.job.Key = key
	return b
}

// Schedule sets the firing instant. Defaults to the occurrence instant.
func (b *Builder) Schedule(at time.Time) *Builder {
	b.job.RunAt = at.UTC()
	return b
}

func (b *Builder) Save(ctx context.Context) error {
	if b.job.Type == "" {
		return errors.New("job type is empty")
	}
	if b.job.Key == "" {
		return errors.New("job key is empty")
	}
	if b.job.RunAt.IsZero() {
		b.job.RunAt = b.job.OccurrenceAt
	}

	inserted, err := b.q.store.InsertJob(ctx, &b.job)
	if err != nil {
		return fmt.Errorf("save job %q: %w", b.job.Key, errors.Join(ErrStoreUnavailable, err))
	}
	if !inserted {
		b.q.logger.Debugw("job key already queued, skipping", "key", b.job.Key)
	}
	return nil
}

// CancelForReminder removes every pending job for the reminder id,
// whatever its occurrence date.
func (q *Queue) CancelForReminder(ctx context.Context, reminderID int64) (int64, error) {
	n, err := q.store.DeleteJobsByReminder(ctx, reminderID)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs for reminder %d: %w", reminderID, errors.Join(ErrStoreUnavailable, err))
	}
	return n, nil
}

// AddFunc registers an auxiliary cron entry on the queue's schedule, e.g.
// the periodic horizon refresh.
func (q *Queue) AddFunc(spec string, fn func()) error {
	_, err := q.cron.AddFunc(spec, fn)
	return err
}

// Start runs the dispatch loop until ctx is cancelled. Due jobs are
// claimed once a minute and handed to the worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	q.baseCtx = ctx
	q.mu.Unlock()

	if _, err := q.cron.AddFunc("* * * * *", q.tick); err != nil {
		return fmt.Errorf("add queue tick: %w", err)
	}

	q.cron.Start()
	q.logger.Infow("job queue started", "concurrency", defaultConcurrency, "lock_lifetime", lockLifetime)

	<-ctx.Done()
	return nil
}

// Stop halts the cron schedule and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	ctx := q.cron.Stop()
	<-ctx.Done()
	q.wg.Wait()
	q.logger.Info("job queue stopped")
}

func (q *Queue) tick() {
	now := q.clk.Now().UTC()
	jobs, err := q.store.ClaimDueJobs(now, now.Add(lockLifetime), claimBatch)
	if err != nil {
		q.logger.Errorw("failed claiming due jobs", "err", err)
		return
	}

	q.mu.RLock()
	ctx := q.baseCtx
	q.mu.RUnlock()

	for _, j := range jobs {
		q.sem <- struct{}{}
		q.wg.Add(1)
		go q.run(ctx, j)
	}
}

func (q *Queue) run(ctx context.Context, job *domain.Job) {
	defer q.wg.Done()
	defer func() { <-q.sem }()

	q.mu.RLock()
	h := q.handlers[job.Type]
	q.mu.RUnlock()

	if h == nil {
		q.logger.Errorw("no handler for job type, dropping", "type", job.Type, "key", job.Key)
		if err := q.store.DeleteJob(job.ID); err != nil {
			q.logger.Errorw("failed deleting unhandled job", "key", job.Key, "err", err)
		}
		return
	}

	if err := h(ctx, job); err != nil {
		attempts := job.Attempts + 1
		if attempts >= maxAttempts {
			q.logger.Errorw("job failed permanently, dropping",
				"key", job.Key, "attempts", attempts, "err", err)
			if delErr := q.store.DeleteJob(job.ID); delErr != nil {
				q.logger.Errorw("failed deleting exhausted job", "key", job.Key, "err", delErr)
			}
			return
		}

		delay := retryBackoff * time.Duration(1<<(attempts-1))
		q.logger.Warnw("job failed, requeued",
			"key", job.Key, "attempt", attempts, "retry_in", delay, "err", err)
		if relErr := q.store.ReleaseJob(job.ID, attempts, q.clk.Now().UTC().Add(delay)); relErr != nil {
			q.logger.Errorw("failed releasing job for retry", "key", job.Key, "err", relErr)
		}
		return
	}

	if err := q.store.DeleteJob(job.ID); err != nil {
		q.logger.Errorw("failed deleting completed job", "key", job.Key, "err", err)
	}
}
