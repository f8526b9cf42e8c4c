// Package assets turns stored image references into publicly reachable URLs.
package assets

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrUnresolvable means a reference was given but cannot be turned into a URL.
// It is distinct from a post that simply has no image.
var ErrUnresolvable = errors.New("image reference cannot be resolved")

type Resolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// URLResolver maps a relative reference onto the public files base URL.
// Absolute http(s) references pass through unchanged.
type URLResolver struct {
	base string
}

func NewURLResolver(base string) *URLResolver {
	return &URLResolver{base: strings.TrimRight(base, "/")}
}

func (r *URLResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrUnresolvable
	}

	// public://foo.png style stream refs
	if rest, ok := strings.CutPrefix(ref, "public://"); ok {
		return r.relative(rest)
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return ref, nil
		}
		return "", ErrUnresolvable
	}

	return r.relative(ref)
}

func (r *URLResolver) relative(ref string) (string, error) {
	ref = strings.TrimLeft(ref, "/")
	if ref == "" || strings.Contains(ref, "..") {
		return "", ErrUnresolvable
	}

	parts := strings.Split(ref, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return r.base + "/" + strings.Join(parts, "/"), nil
}

var _ Resolver = (*URLResolver)(nil)
