package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/config"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
type MetricHooks struct {
	OnPublished func()
	OnFailed    func()
	OnDeferred  func()
	OnDiscarded func()
}

func (h MetricHooks) withDefaults() MetricHooks {
	noop := func() {}
	if h.OnPublished == nil {
		h.OnPublished = noop
	}
	if h.OnFailed == nil {
		h.OnFailed = noop
	}
	if h.OnDeferred == nil {
		h.OnDeferred = noop
	}
	if h.OnDiscarded == nil {
		h.OnDiscarded = noop
	}
	return h
}

// Pool runs a consumption cycle on every worker each time the schedule
// fires. A cycle still running when the next tick arrives makes that tick
// a no-op.
type Pool struct {
	workers []*Worker
	cron    *cron.Cron
	logger  *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	closed   bool
	stopping chan struct{}
	wg       sync.WaitGroup

	// running is held for the length of a cycle; ticks, Kick and RunNow
	// never overlap.
	running sync.Mutex
}

// NewPool creates cfg.Workers identical workers sharing one queue.
// delayed is passed through to every worker; see NewWorker.
func NewPool(
	cfg *config.Config,
	q queue.Queue,
	delayed queue.DelayedQueue,
	repo repository.PostRepository,
	pub Publisher,
	src SettingsSource,
	logger *zap.Logger,
	hooks MetricHooks,
) (*Pool, error) {
	workers := make([]*Worker, cfg.Workers)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, delayed, repo, pub, src,
			cfg.WorkerMaxTasksPerRun,
			logger.With(zap.Int("worker_id", i)),
			hooks,
		)
	}

	cl := cronLogger{logger.Sugar()}
	p := &Pool{
		workers:  workers,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:   logger,
		ctx:      context.Background(),
		stopping: make(chan struct{}),
	}
	if _, err := p.cron.AddFunc(cfg.WorkerSchedule, p.tick); err != nil {
		return nil, fmt.Errorf("invalid WORKER_SCHEDULE %q: %w", cfg.WorkerSchedule, err)
	}
	return p, nil
}

// Start begins firing the schedule. ctx is handed to every cycle.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.cron.Start()
	p.logger.Info("worker pool started", zap.Int("workers", len(p.workers)))
}

// Kick starts one cycle in the background and returns immediately.
func (p *Pool) Kick(ctx context.Context) {
	if !p.begin() {
		return
	}
	go func() {
		defer p.wg.Done()
		p.runCycle(ctx)
	}()
}

// RunNow runs one cycle on every worker and waits for it to finish.
func (p *Pool) RunNow(ctx context.Context) {
	if !p.begin() {
		return
	}
	defer p.wg.Done()
	p.runCycle(ctx)
}

// Stop halts the schedule and tells running cycles to end once their current
// task is done; a platform call already issued is never interrupted. It
// returns when every cycle has returned, or with an error when ctx expires
// first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stopping)
	}
	p.mu.Unlock()

	cronCtx := p.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for worker cycles: %w", ctx.Err())
	}
}

// begin registers a cycle with the WaitGroup unless Stop has been called.
func (p *Pool) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

func (p *Pool) tick() {
	if !p.begin() {
		return
	}
	defer p.wg.Done()

	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	p.runCycle(ctx)
}

func (p *Pool) runCycle(ctx context.Context) {
	if !p.running.TryLock() {
		p.logger.Debug("cycle already running, skipping")
		return
	}
	defer p.running.Unlock()

	c := newCycle(p.stopping)
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.runCycle(ctx, c); err != nil && ctx.Err() == nil {
				w.logger.Error("cycle aborted", zap.Error(err))
			}
		}(w)
	}
	wg.Wait()
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
