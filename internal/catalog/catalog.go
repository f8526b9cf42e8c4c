// Package catalog reads the commerce products posts refer to.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcast/social-publisher/internal/domain"
)

type Product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// URL is the product's canonical storefront address.
	URL string `json:"url"`
	// ImageRef is the product's default image, used when a post has none.
	ImageRef *string `json:"image_ref,omitempty"`
}

type Catalog interface {
	// Product returns domain.ErrNotFound when id is unknown.
	Product(ctx context.Context, id string) (*Product, error)
}

// CanonicalURL builds the storefront address of a product.
func CanonicalURL(storefrontBase, id string) string {
	return strings.TrimRight(storefrontBase, "/") + "/product/" + url.PathEscape(id)
}

type PgCatalog struct {
	pool           *pgxpool.Pool
	storefrontBase string
}

func NewPgCatalog(pool *pgxpool.Pool, storefrontBase string) *PgCatalog {
	return &PgCatalog{pool: pool, storefrontBase: storefrontBase}
}

func (c *PgCatalog) Product(ctx context.Context, id string) (*Product, error) {
	p := &Product{ID: id}
	err := c.pool.QueryRow(ctx,
		`SELECT title, image_ref FROM products WHERE id = $1`, id,
	).Scan(&p.Title, &p.ImageRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.URL = CanonicalURL(c.storefrontBase, id)
	return p, nil
}

// MemoryCatalog is a fixed in-process catalogue for tests and for running
// without a commerce database.
type MemoryCatalog struct {
	mu             sync.RWMutex
	products       map[string]Product
	storefrontBase string
}

func NewMemoryCatalog(storefrontBase string, products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]Product), storefrontBase: storefrontBase}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// Put adds or replaces a product; an empty URL is filled in canonically.
func (c *MemoryCatalog) Put(p Product) {
	if p.URL == "" {
		p.URL = CanonicalURL(c.storefrontBase, p.ID)
	}
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

func (c *MemoryCatalog) Product(_ context.Context, id string) (*Product, error) {
	c.mu.RLock()
	p, ok := c.products[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if p.ImageRef != nil {
		ref := *p.ImageRef
		p.ImageRef = &ref
	}
	return &p, nil
}

var (
	_ Catalog = (*PgCatalog)(nil)
	_ Catalog = (*MemoryCatalog)(nil)
)
