package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopcast/social-publisher/internal/domain"
)

// PostRepository is the Post Store: the single source of truth for post
// state. The pgx implementation is in pg_post_repo.go, the embedded one in
// sqlite_post_repo.go. Tests use a hand-written mock (mock_post_repo.go).
//
// SetStatus does not check transition legality; the worker is the only
// caller that drives transitions. Writing the status a row already has is a
// no-op, so redelivered tasks can finish without error.
type PostRepository interface {
	Create(ctx context.Context, p *domain.Post) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Post, error)
	SetStatus(ctx context.Context, id string, status domain.Status, publishedAt *time.Time) error
	List(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, int, error)
}

// prepareNew fills the fields the store owns and checks creation invariants.
func prepareNew(p *domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	p.Status = domain.StatusPending
	p.PublishedAt = nil
	return p.ValidateNew()
}

// statusWrite returns the published_at value to persist alongside status.
// published_at is kept iff the status is published.
func statusWrite(status domain.Status, publishedAt *time.Time) (*time.Time, error) {
	if !status.IsValid() {
		return nil, domain.Validationf("unknown status %q", status)
	}
	if status != domain.StatusPublished {
		return nil, nil
	}
	if publishedAt == nil {
		now := time.Now().UTC()
		return &now, nil
	}
	t := publishedAt.UTC()
	return &t, nil
}

func encodePlatforms(platforms []domain.Platform) ([]byte, error) {
	b, err := json.Marshal(platforms)
	if err != nil {
		return nil, fmt.Errorf("encode platforms: %w", err)
	}
	return b, nil
}

func decodePlatforms(b []byte) ([]domain.Platform, error) {
	var platforms []domain.Platform
	if err := json.Unmarshal(b, &platforms); err != nil {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	return platforms, nil
}

func pageBounds(f domain.PostFilter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
