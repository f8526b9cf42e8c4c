// Package platform contains one adapter per social network. Adapters share a
// Graph API transport and are looked up through a Registry, so adding a
// network means adding an adapter and registering it.
package platform

import (
	"context"
	"sort"
	"sync"

	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/settings"
)

// Request is everything an adapter needs to publish one post.
type Request struct {
	Post     *domain.Post
	Settings settings.Snapshot
}

// Adapter publishes a post to a single platform. Mocking this interface in
// tests gives full control over platform behaviour without real HTTP calls.
type Adapter interface {
	Name() domain.Platform
	Publish(ctx context.Context, req Request) error
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a or replaces the adapter already registered under its name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

func (r *Registry) Get(p domain.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms lists registered platforms in name order.
func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
