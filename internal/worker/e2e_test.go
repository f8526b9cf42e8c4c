package worker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/assets"
	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/platform"
	"github.com/shopcast/social-publisher/internal/publisher"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/ratelimiter"
	"github.com/shopcast/social-publisher/internal/repository"
	"github.com/shopcast/social-publisher/internal/service"
	"github.com/shopcast/social-publisher/internal/settings"
	"github.com/shopcast/social-publisher/internal/worker"
)

// pipeline wires the real service, worker, coordinator and adapters against
// an in-memory store and queue and a fake Graph API.
type pipeline struct {
	repo  *repository.MockPostRepository
	q     *queue.MemoryQueue
	svc   *service.PostService
	w     *worker.Worker
	mu    sync.Mutex
	paths []string
}

func newPipeline(t *testing.T, handler func(path string) (int, string)) *pipeline {
	t.Helper()
	p := &pipeline{repo: repository.NewMockPostRepository(), q: queue.NewMemoryQueue(10)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.paths = append(p.paths, r.URL.Path)
		p.mu.Unlock()
		status, body := handler(r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	snap := settings.Defaults()
	snap.Facebook = settings.Facebook{AppID: "app", AppSecret: "secret", PageID: "page", AccessToken: "fb"}
	snap.Instagram = settings.Instagram{AccountID: "ig", AccessToken: "ig-token"}
	src := settings.Static(snap)

	img := "products/shoe.png"
	cat := catalog.NewMemoryCatalog("https://shop.example", catalog.Product{ID: "42", Title: "Red Shoe", ImageRef: &img})
	res := assets.NewURLResolver("https://cdn.example/files")
	client := platform.NewGraphClient(srv.URL, 2*time.Second)
	reg := platform.NewRegistry(
		platform.NewFacebookAdapter(client, cat, res, zap.NewNop()),
		platform.NewInstagramAdapter(client, cat, res, zap.NewNop()),
	)
	coord := publisher.NewCoordinator(reg, ratelimiter.New(0), publisher.Options{Concurrency: 2, CallTimeout: time.Second}, zap.NewNop(), nil)

	p.svc = service.NewPostService(p.repo, p.q, cat, src, reg, zap.NewNop())
	p.w = worker.NewWorker(0, p.q, nil, p.repo, coord, src, 10, zap.NewNop(), worker.MetricHooks{})
	return p
}

func (p *pipeline) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func TestPipeline_PublishNow(t *testing.T) {
	p := newPipeline(t, func(string) (int, string) { return http.StatusOK, `{"id":"1"}` })
	ctx := context.Background()

	post, ack, err := p.svc.Submit(ctx, domain.SubmitRequest{
		ProductID: "42",
		Platforms: []domain.Platform{domain.PlatformFacebook},
		Message:   "Check out X",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack != service.AckPublishing {
		t.Fatalf("expected publishing ack, got %s", ack)
	}
	if n, _ := p.q.Len(ctx); n != 1 {
		t.Fatalf("expected one queued task, got %d", n)
	}

	if err := p.w.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got, _ := p.repo.GetByID(ctx, post.ID)
	if got.Status != domain.StatusPublished || got.PublishedAt == nil {
		t.Fatalf("expected published with published_at, got %s %v", got.Status, got.PublishedAt)
	}
	if n, _ := p.q.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	if paths := p.Paths(); len(paths) != 1 || paths[0] != "/page/feed" {
		t.Fatalf("unexpected graph calls %v", paths)
	}
}

func TestPipeline_ScheduledPartialFailure(t *testing.T) {
	p := newPipeline(t, func(path string) (int, string) {
		if path == "/ig/media" {
			return http.StatusBadRequest, `{"error":{"message":"invalid image"}}`
		}
		return http.StatusOK, `{"id":"1"}`
	})
	ctx := context.Background()

	at := time.Now().Add(time.Hour)
	post, ack, err := p.svc.Submit(ctx, domain.SubmitRequest{
		ProductID:   "42",
		Platforms:   []domain.Platform{domain.PlatformFacebook, domain.PlatformInstagram},
		Message:     "Check out X",
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack != service.AckScheduled {
		t.Fatalf("expected scheduled ack, got %s", ack)
	}

	// Before the due time the task just goes round again.
	if err := p.w.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := p.repo.GetByID(ctx, post.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("expected still pending, got %s", got.Status)
	}
	if n, _ := p.q.Len(ctx); n != 1 {
		t.Fatalf("expected the task re-enqueued, got %d", n)
	}
	if len(p.Paths()) != 0 {
		t.Fatal("no platform may be called before the due time")
	}

	p.w.SetClock(func() time.Time { return at.Add(time.Minute) })
	if err := p.w.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ = p.repo.GetByID(ctx, post.ID)
	if got.Status != domain.StatusFailed || got.PublishedAt != nil {
		t.Fatalf("expected failed without published_at, got %s %v", got.Status, got.PublishedAt)
	}
	if n, _ := p.q.Len(ctx); n != 0 {
		t.Fatalf("a failed post must not be re-enqueued, queue len %d", n)
	}

	var fb, ig int
	for _, path := range p.Paths() {
		switch path {
		case "/page/feed":
			fb++
		case "/ig/media":
			ig++
		}
	}
	if fb != 1 || ig != 1 {
		t.Fatalf("expected each platform attempted once, got facebook=%d instagram=%d", fb, ig)
	}
}
