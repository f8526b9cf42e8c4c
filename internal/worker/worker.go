package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/repository"
	"github.com/shopcast/social-publisher/internal/settings"
)

// Outcome is what processing did with a task.
type Outcome int

const (
	// OutcomeDiscarded: the post no longer exists.
	OutcomeDiscarded Outcome = iota + 1
	// OutcomeDeferred: a scheduled post was not yet due and went back on the queue.
	OutcomeDeferred
	OutcomePublished
	OutcomeFailed
	// OutcomeDuplicate: the post had already reached a final status.
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeDeferred:
		return "deferred"
	case OutcomePublished:
		return "published"
	case OutcomeFailed:
		return "failed"
	case OutcomeDuplicate:
		return "duplicate"
	}
	return "unknown"
}

// Publisher fans a post out to its platforms.
type Publisher interface {
	Publish(ctx context.Context, post *domain.Post, platforms []domain.Platform, snap settings.Snapshot) domain.PublishResult
}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// Worker drains the publish queue in cycles. Each task is processed against
// the store, which stays authoritative: the task only names the post.
type Worker struct {
	id       int
	q        queue.Queue
	delayed  queue.DelayedQueue
	repo     repository.PostRepository
	pub      Publisher
	settings SettingsSource
	maxTasks int
	logger   *zap.Logger
	hooks    MetricHooks
	now      func() time.Time
}

// NewWorker constructs a worker. delayed is nil unless the queue's native
// deliver-at support should be used for posts that are not yet due.
func NewWorker(
	id int,
	q queue.Queue,
	delayed queue.DelayedQueue,
	repo repository.PostRepository,
	pub Publisher,
	src SettingsSource,
	maxTasks int,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	return &Worker{
		id: id, q: q, delayed: delayed, repo: repo, pub: pub,
		settings: src, maxTasks: maxTasks, logger: logger,
		hooks: hooks.withDefaults(), now: time.Now,
	}
}

// RunCycle consumes tasks until the queue is empty, a task already handled
// in this cycle comes round again, or maxTasks have been taken. Every cycle
// publishes with one settings snapshot.
//
// A task that was deferred or nacked is seen at most once per cycle, so the
// rate at which not-yet-due posts are re-enqueued is bounded by the cycle
// cadence rather than by how fast the queue can spin.
func (w *Worker) RunCycle(ctx context.Context) error {
	return w.runCycle(ctx, newCycle(nil))
}

func (w *Worker) runCycle(ctx context.Context, c *cycle) error {
	snap := w.settings.Snapshot()

	for n := 0; w.maxTasks <= 0 || n < w.maxTasks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.stopped() {
			return nil
		}

		d, err := w.q.Dequeue(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}

		if !c.claim(d.Task.PostID) {
			if err := d.Nack(ctx); err != nil {
				w.logger.Error("failed to return task to the queue", zap.String("post_id", d.Task.PostID), zap.Error(err))
			}
			return nil
		}

		if _, err := w.process(ctx, d.Task, snap); err != nil {
			w.logger.Error("task processing failed, returning it to the queue",
				zap.String("post_id", d.Task.PostID), zap.Error(err))
			if err := d.Nack(ctx); err != nil {
				w.logger.Error("failed to return task to the queue", zap.String("post_id", d.Task.PostID), zap.Error(err))
			}
			continue
		}
		if err := d.Ack(ctx); err != nil {
			w.logger.Warn("failed to ack task", zap.String("post_id", d.Task.PostID), zap.Error(err))
		}
	}
	return nil
}

// Process handles a single task with the current settings snapshot.
// A non-nil error means the task should be redelivered.
func (w *Worker) Process(ctx context.Context, t queue.Task) (Outcome, error) {
	return w.process(ctx, t, w.settings.Snapshot())
}

func (w *Worker) process(ctx context.Context, t queue.Task, snap settings.Snapshot) (Outcome, error) {
	start := time.Now()
	log := w.logger.With(
		zap.String("post_id", t.PostID),
		zap.String("action", string(t.Action)),
	)

	post, err := w.repo.GetByID(ctx, t.PostID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("post not found, discarding task")
		w.hooks.OnDiscarded()
		return OutcomeDiscarded, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load post: %w", err)
	}

	// At-least-once delivery can hand us a post that was already finished.
	if post.Status.IsTerminal() {
		log.Info("post already processed, skipping", zap.String("status", string(post.Status)))
		return OutcomeDuplicate, nil
	}

	if t.Action == domain.ActionSchedule && !post.Due(w.now()) {
		if w.delayed != nil {
			err = w.delayed.EnqueueAt(ctx, t, *post.ScheduledAt)
		} else {
			err = w.q.Enqueue(ctx, t)
		}
		if err != nil {
			return 0, fmt.Errorf("defer post: %w", err)
		}
		log.Debug("post not yet due, deferred", zap.Time("scheduled_at", *post.ScheduledAt))
		w.hooks.OnDeferred()
		return OutcomeDeferred, nil
	}

	res := w.pub.Publish(ctx, post, post.Platforms, snap)
	elapsed := time.Since(start)

	if res.OK() {
		at := w.now().UTC()
		if err := w.repo.SetStatus(ctx, post.ID, domain.StatusPublished, &at); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
		w.hooks.OnPublished()
		log.Info("post published", zap.Duration("latency", elapsed))
		return OutcomePublished, nil
	}

	if err := w.repo.SetStatus(ctx, post.ID, domain.StatusFailed, nil); err != nil {
		return 0, fmt.Errorf("mark failed: %w", err)
	}
	w.hooks.OnFailed()
	log.Warn("post failed",
		zap.Strings("failed_platforms", platformNames(res.Failed())),
		zap.Strings("published_platforms", platformNames(res.Succeeded())),
		zap.Duration("latency", elapsed),
		zap.Error(res.Err()),
	)
	return OutcomeFailed, nil
}

func platformNames(ps []domain.Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
