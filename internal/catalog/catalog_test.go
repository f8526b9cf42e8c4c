package catalog_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/db"
	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/repository"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		base, id, want string
	}{
		{"https://shop.example", "42", "https://shop.example/product/42"},
		{"https://shop.example/", "42", "https://shop.example/product/42"},
		{"https://shop.example", "a b", "https://shop.example/product/a%20b"},
	}
	for _, tc := range tests {
		if got := catalog.CanonicalURL(tc.base, tc.id); got != tc.want {
			t.Fatalf("CanonicalURL(%q, %q) = %q, want %q", tc.base, tc.id, got, tc.want)
		}
	}
}

func TestMemoryCatalog(t *testing.T) {
	img := "products/shoe.jpg"
	c := catalog.NewMemoryCatalog("https://shop.example", catalog.Product{ID: "42", Title: "Red Shoe", ImageRef: &img})
	ctx := context.Background()

	p, err := c.Product(ctx, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.URL != "https://shop.example/product/42" {
		t.Fatalf("unexpected url %s", p.URL)
	}
	*p.ImageRef = "changed"
	again, _ := c.Product(ctx, "42")
	if *again.ImageRef != img {
		t.Fatal("returned product must not alias the catalogue")
	}

	if _, err := c.Product(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPgCatalog(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	id := uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO products (id, title) VALUES ($1, 'Lamp')`, id); err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id) })

	c := catalog.NewPgCatalog(pool, "https://shop.example")
	p, err := c.Product(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Title != "Lamp" || p.ImageRef != nil {
		t.Fatalf("unexpected product %+v", p)
	}
	if _, err := c.Product(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLCatalog(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQLitePostRepository(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	_, err = repo.DB().ExecContext(ctx, `INSERT INTO products (id, title, image_ref) VALUES ('42', 'Red Shoe', 'products/shoe.png'), ('43', 'Lamp', NULL)`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := catalog.NewSQLCatalog(repo.DB(), "https://shop.example")
	p, err := c.Product(ctx, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Title != "Red Shoe" || p.ImageRef == nil || *p.ImageRef != "products/shoe.png" {
		t.Fatalf("unexpected product %+v", p)
	}
	if p.URL != "https://shop.example/product/42" {
		t.Fatalf("unexpected url %s", p.URL)
	}

	lamp, _ := c.Product(ctx, "43")
	if lamp.ImageRef != nil {
		t.Fatal("expected no default image")
	}

	if _, err := c.Product(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type blockingCatalog struct {
	calls   atomic.Int32
	release chan struct{}
	inner   catalog.Catalog
}

func (b *blockingCatalog) Product(ctx context.Context, id string) (*catalog.Product, error) {
	b.calls.Add(1)
	<-b.release
	return b.inner.Product(ctx, id)
}

func TestShared_CollapsesConcurrentLookups(t *testing.T) {
	img := "products/shoe.png"
	backend := &blockingCatalog{
		release: make(chan struct{}),
		inner:   catalog.NewMemoryCatalog("https://shop.example", catalog.Product{ID: "42", Title: "Red Shoe", ImageRef: &img}),
	}
	shared := catalog.NewShared(backend)

	const callers = 5
	results := make([]*catalog.Product, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := shared.Product(context.Background(), "42")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = p
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	if n := backend.calls.Load(); n != 1 {
		t.Fatalf("expected 1 backend lookup, got %d", n)
	}
	*results[0].ImageRef = "changed"
	results[0].Title = "changed"
	if results[1].Title != "Red Shoe" || *results[1].ImageRef != img {
		t.Fatal("callers must receive independent copies")
	}
}

func TestShared_PropagatesNotFound(t *testing.T) {
	shared := catalog.NewShared(catalog.NewMemoryCatalog("https://shop.example"))
	if _, err := shared.Product(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
