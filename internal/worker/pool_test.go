package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/config"
	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/repository"
	"github.com/shopcast/social-publisher/internal/settings"
	"github.com/shopcast/social-publisher/internal/worker"
)

func TestNewPool_InvalidSchedule(t *testing.T) {
	cfg := &config.Config{Workers: 1, WorkerSchedule: "every now and then"}
	_, err := worker.NewPool(cfg, queue.NewMemoryQueue(1), nil, repository.NewMockPostRepository(),
		&fakePublisher{}, settings.Static(settings.Defaults()), zap.NewNop(), worker.MetricHooks{})
	if err == nil {
		t.Fatal("expected an error for an unparsable schedule")
	}
}

func TestPool_RunNowDrainsQueue(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(50)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		p := &domain.Post{ProductID: "42", Platforms: []domain.Platform{domain.PlatformFacebook}, Message: "hi"}
		id, _ := repo.Create(ctx, p)
		_ = q.Enqueue(ctx, queue.Task{PostID: id, Action: domain.ActionPublishNow})
	}

	var published atomic.Int32
	cfg := &config.Config{Workers: 3, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 100}
	pool, err := worker.NewPool(cfg, q, nil, repo, &fakePublisher{}, settings.Static(settings.Defaults()), zap.NewNop(),
		worker.MetricHooks{OnPublished: func() { published.Add(1) }})
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(ctx)
	pool.RunNow(ctx)
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if published.Load() != 10 {
		t.Fatalf("expected 10 posts published exactly once, got %d", published.Load())
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func seedPublishNow(t *testing.T, repo *repository.MockPostRepository, q queue.Queue, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		p := &domain.Post{ProductID: "42", Platforms: []domain.Platform{domain.PlatformFacebook}, Message: "hi"}
		id, err := repo.Create(ctx, p)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := q.Enqueue(ctx, queue.Task{PostID: id, Action: domain.ActionPublishNow}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
}

func TestPool_StopEndsCycleAfterCurrentTask(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(50)
	seedPublishNow(t, repo, q, 20)

	pub := &fakePublisher{delay: 100 * time.Millisecond}
	cfg := &config.Config{Workers: 1, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 500}
	pool, err := worker.NewPool(cfg, q, nil, repo, pub, settings.Static(settings.Defaults()), zap.NewNop(), worker.MetricHooks{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	pool.Start(ctx)
	pool.Kick(ctx)
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop took %s, expected it to wait for one task only", elapsed)
	}

	if pub.Calls() != 1 {
		t.Fatalf("expected only the in-flight task to be published, got %d calls", pub.Calls())
	}
	if n, _ := q.Len(ctx); n != 19 {
		t.Fatalf("expected 19 tasks left for the next run, got %d", n)
	}
	if repo.Mutations() != 1 {
		t.Fatalf("expected the in-flight post to be recorded, got %d mutations", repo.Mutations())
	}
}

func TestPool_StopTimesOut(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(5)
	seedPublishNow(t, repo, q, 1)

	pub := &fakePublisher{delay: 300 * time.Millisecond}
	cfg := &config.Config{Workers: 1, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 10}
	pool, err := worker.NewPool(cfg, q, nil, repo, pub, settings.Static(settings.Defaults()), zap.NewNop(), worker.MetricHooks{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	pool.Kick(ctx)
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// Let the in-flight call finish before the test tears down.
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPool_NoCyclesAfterStop(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(5)
	seedPublishNow(t, repo, q, 2)

	pub := &fakePublisher{}
	cfg := &config.Config{Workers: 2, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 10}
	pool, err := worker.NewPool(cfg, q, nil, repo, pub, settings.Static(settings.Defaults()), zap.NewNop(), worker.MetricHooks{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := pool.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	pool.Kick(ctx)
	pool.RunNow(ctx)

	if pub.Calls() != 0 {
		t.Fatalf("expected no publishing after stop, got %d calls", pub.Calls())
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("expected queue untouched, got %d", n)
	}
}

func TestPool_CyclesDoNotOverlap(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(10)
	seedPublishNow(t, repo, q, 3)

	pub := &fakePublisher{delay: 100 * time.Millisecond}
	cfg := &config.Config{Workers: 1, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 10}
	pool, err := worker.NewPool(cfg, q, nil, repo, pub, settings.Static(settings.Defaults()), zap.NewNop(), worker.MetricHooks{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	pool.Kick(ctx)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	pool.RunNow(ctx)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("RunNow should skip while a cycle runs, it took %s", elapsed)
	}

	if err := pool.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

// TestPool_DefersOncePerCycleAcrossWorkers checks that a not-yet-due post is
// re-enqueued once per cycle, however many workers share the queue.
func TestPool_DefersOncePerCycleAcrossWorkers(t *testing.T) {
	repo := repository.NewMockPostRepository()
	q := queue.NewMemoryQueue(10)
	ctx := context.Background()

	later := time.Now().Add(time.Hour)
	p := &domain.Post{
		ProductID:   "42",
		Platforms:   []domain.Platform{domain.PlatformFacebook},
		Message:     "hi",
		CreatedAt:   time.Now().UTC(),
		ScheduledAt: &later,
	}
	id, err := repo.Create(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Enqueue(ctx, queue.Task{PostID: id, Action: domain.ActionSchedule})

	var deferred atomic.Int32
	cfg := &config.Config{Workers: 4, WorkerSchedule: "@every 1h", WorkerMaxTasksPerRun: 100}
	pool, err := worker.NewPool(cfg, q, nil, repo, &fakePublisher{}, settings.Static(settings.Defaults()), zap.NewNop(),
		worker.MetricHooks{OnDeferred: func() { deferred.Add(1) }})
	if err != nil {
		t.Fatal(err)
	}
	pool.RunNow(ctx)
	if err := pool.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if deferred.Load() != 1 {
		t.Fatalf("expected one deferral per cycle, got %d", deferred.Load())
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("expected the task back on the queue once, got %d", n)
	}
	if repo.SetStatusCalls() != 0 {
		t.Fatalf("expected no store writes, got %d", repo.SetStatusCalls())
	}
}

func TestDepthReporter(t *testing.T) {
	q := queue.NewMemoryQueue(5)
	_ = q.Enqueue(context.Background(), queue.Task{PostID: "a"})
	_ = q.Enqueue(context.Background(), queue.Task{PostID: "b"})

	var last atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	r := worker.NewDepthReporter(q, time.Hour, func(n int) { last.Store(int32(n)) }, zap.NewNop())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for last.Load() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if last.Load() != 2 {
		t.Fatalf("expected depth 2 reported on start, got %d", last.Load())
	}
}
