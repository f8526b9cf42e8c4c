package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopcast/social-publisher/internal/domain"
)

// SQLCatalog reads the products table through database/sql. It serves the
// SQLite deployment, where the catalogue lives in the same file as posts.
type SQLCatalog struct {
	db             *sql.DB
	storefrontBase string
}

func NewSQLCatalog(db *sql.DB, storefrontBase string) *SQLCatalog {
	return &SQLCatalog{db: db, storefrontBase: storefrontBase}
}

func (c *SQLCatalog) Product(ctx context.Context, id string) (*Product, error) {
	p := &Product{ID: id}
	var image sql.NullString
	err := c.db.QueryRowContext(ctx, `SELECT title, image_ref FROM products WHERE id = ?`, id).Scan(&p.Title, &image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if image.Valid {
		p.ImageRef = &image.String
	}
	p.URL = CanonicalURL(c.storefrontBase, id)
	return p, nil
}

var _ Catalog = (*SQLCatalog)(nil)
