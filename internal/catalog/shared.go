package catalog

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Shared collapses concurrent lookups of the same product into one query.
// Adapters fanned out for a single post all ask for the same product at
// nearly the same instant.
type Shared struct {
	next  Catalog
	group singleflight.Group
}

func NewShared(next Catalog) *Shared {
	return &Shared{next: next}
}

// Product returns a private copy; the in-flight caller's ctx governs the
// shared query.
func (s *Shared) Product(ctx context.Context, id string) (*Product, error) {
	v, err, _ := s.group.Do(id, func() (any, error) {
		return s.next.Product(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*Product)
	if p.ImageRef != nil {
		ref := *p.ImageRef
		p.ImageRef = &ref
	}
	return &p, nil
}

var _ Catalog = (*Shared)(nil)
