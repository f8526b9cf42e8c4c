package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/assets"
	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/domain"
)

// InstagramAdapter publishes in two phases: create a media container, then
// publish it. A container created by a failed second phase is left behind.
type InstagramAdapter struct {
	client  *GraphClient
	catalog catalog.Catalog
	assets  assets.Resolver
	logger  *zap.Logger
}

func NewInstagramAdapter(client *GraphClient, cat catalog.Catalog, res assets.Resolver, logger *zap.Logger) *InstagramAdapter {
	return &InstagramAdapter{client: client, catalog: cat, assets: res, logger: logger}
}

func (a *InstagramAdapter) Name() domain.Platform { return domain.PlatformInstagram }

type containerResponse struct {
	ID string `json:"id"`
}

func (a *InstagramAdapter) Publish(ctx context.Context, req Request) error {
	creds := req.Settings.Instagram
	if !creds.Complete() {
		return domain.Configf("instagram API credentials not configured")
	}

	product, err := a.catalog.Product(ctx, req.Post.ProductID)
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}

	imageURL, err := a.imageURL(ctx, req.Post, product)
	if err != nil {
		return err
	}

	account := url.PathEscape(creds.AccountID)
	resp, err := a.client.PostForm(ctx, account+"/media", url.Values{
		"image_url":    {imageURL},
		"caption":      {req.Post.Message},
		"access_token": {creds.AccessToken},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(domain.PlatformInstagram, resp)
	}
	var container containerResponse
	if err := json.Unmarshal(resp.Body, &container); err != nil || container.ID == "" {
		return remoteError(domain.PlatformInstagram, resp)
	}

	resp, err = a.client.PostForm(ctx, account+"/media_publish", url.Values{
		"creation_id":  {container.ID},
		"access_token": {creds.AccessToken},
	})
	if err != nil {
		return fmt.Errorf("publish container %s: %w", container.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return remoteError(domain.PlatformInstagram, resp)
	}

	a.logger.Info("published to instagram",
		zap.String("post_id", req.Post.ID),
		zap.String("product", product.Title),
		zap.String("creation_id", container.ID),
	)
	return nil
}

// imageURL prefers the post's own image and falls back to the product's
// default only when the post has none.
func (a *InstagramAdapter) imageURL(ctx context.Context, post *domain.Post, product *catalog.Product) (string, error) {
	ref := post.ImageRef
	if ref == nil {
		ref = product.ImageRef
	}
	if ref == nil {
		return "", domain.Validationf("instagram requires an image, but none was found")
	}
	u, err := a.assets.ResolveURL(ctx, *ref)
	if err != nil {
		return "", domain.Validationf("instagram requires an image, but %q could not be resolved", *ref)
	}
	return u, nil
}

var _ Adapter = (*InstagramAdapter)(nil)
