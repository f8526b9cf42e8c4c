package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/assets"
	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/domain"
)

// FacebookAdapter publishes to a page feed with a single call.
type FacebookAdapter struct {
	client  *GraphClient
	catalog catalog.Catalog
	assets  assets.Resolver
	logger  *zap.Logger
}

func NewFacebookAdapter(client *GraphClient, cat catalog.Catalog, res assets.Resolver, logger *zap.Logger) *FacebookAdapter {
	return &FacebookAdapter{client: client, catalog: cat, assets: res, logger: logger}
}

func (a *FacebookAdapter) Name() domain.Platform { return domain.PlatformFacebook }

func (a *FacebookAdapter) Publish(ctx context.Context, req Request) error {
	creds := req.Settings.Facebook
	if !creds.Complete() {
		return domain.Configf("facebook API credentials not configured")
	}

	product, err := a.catalog.Product(ctx, req.Post.ProductID)
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}

	form := url.Values{
		"message":      {req.Post.Message},
		"access_token": {creds.AccessToken},
		"link":         {product.URL},
	}
	if req.Post.ImageRef != nil {
		picture, err := a.assets.ResolveURL(ctx, *req.Post.ImageRef)
		if err != nil {
			a.logger.Warn("posting without picture",
				zap.String("post_id", req.Post.ID),
				zap.String("image_ref", *req.Post.ImageRef),
				zap.Error(err),
			)
		} else {
			form.Set("picture", picture)
		}
	}

	resp, err := a.client.PostForm(ctx, url.PathEscape(creds.PageID)+"/feed", form)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return remoteError(domain.PlatformFacebook, resp)
	}

	a.logger.Info("published to facebook",
		zap.String("post_id", req.Post.ID),
		zap.String("product", product.Title),
	)
	return nil
}

var _ Adapter = (*FacebookAdapter)(nil)
