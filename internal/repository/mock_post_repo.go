package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopcast/social-publisher/internal/domain"
)

// MockPostRepository is a hand-written, in-memory implementation of
// PostRepository used in unit tests.
type MockPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.Post

	setStatusCalls int
	mutations      int

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr    error
	GetByIDErr   error
	SetStatusErr error
}

func NewMockPostRepository() *MockPostRepository {
	return &MockPostRepository{posts: make(map[string]*domain.Post)}
}

func (m *MockPostRepository) Create(_ context.Context, p *domain.Post) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if err := prepareNew(p); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = clonePost(p)
	return p.ID, nil
}

func (m *MockPostRepository) GetByID(_ context.Context, id string) (*domain.Post, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePost(p), nil
}

func (m *MockPostRepository) SetStatus(_ context.Context, id string, status domain.Status, publishedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusCalls++
	if m.SetStatusErr != nil {
		return m.SetStatusErr
	}
	pubAt, err := statusWrite(status, publishedAt)
	if err != nil {
		return err
	}
	p, ok := m.posts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == status {
		return nil
	}
	p.Status = status
	p.PublishedAt = pubAt
	p.UpdatedAt = time.Now().UTC()
	m.mutations++
	return nil
}

func (m *MockPostRepository) List(_ context.Context, f domain.PostFilter) ([]*domain.Post, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*domain.Post
	for _, p := range m.posts {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.ProductID != nil && p.ProductID != *f.ProductID {
			continue
		}
		matched = append(matched, clonePost(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit, offset := pageBounds(f)
	if offset >= total {
		return []*domain.Post{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// SetStatusCalls counts every SetStatus invocation, including no-ops.
func (m *MockPostRepository) SetStatusCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setStatusCalls
}

// Mutations counts SetStatus calls that actually changed a row.
func (m *MockPostRepository) Mutations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mutations
}

func clonePost(p *domain.Post) *domain.Post {
	c := *p
	c.Platforms = append([]domain.Platform(nil), p.Platforms...)
	if p.ImageRef != nil {
		ref := *p.ImageRef
		c.ImageRef = &ref
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		c.ScheduledAt = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}
