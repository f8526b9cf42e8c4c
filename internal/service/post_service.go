package service

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/catalog"
	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/repository"
	"github.com/shopcast/social-publisher/internal/settings"
)

// Ack is the immediate acknowledgement returned to a submitter. It says
// nothing about delivery; the post's status does.
type Ack string

const (
	AckScheduled  Ack = "scheduled"
	AckPublishing Ack = "publishing"
)

// AllowedImageExtensions lists the file types accepted for post images.
var AllowedImageExtensions = []string{"png", "gif", "jpg", "jpeg"}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// PlatformSet reports the platforms that have an adapter.
type PlatformSet interface {
	Platforms() []domain.Platform
}

// ShareDefaults pre-fills the share form for a product.
type ShareDefaults struct {
	ProductID              string            `json:"product_id"`
	Message                string            `json:"message"`
	Platforms              []domain.Platform `json:"platforms"`
	AllowedImageExtensions []string          `json:"allowed_image_extensions"`
}

// PostService coordinates the store and the queue.
// Submission rules live here; HTTP handlers depend on this service, workers
// do not.
type PostService struct {
	repo      repository.PostRepository
	q         queue.Queue
	catalog   catalog.Catalog
	settings  SettingsSource
	platforms PlatformSet
	logger    *zap.Logger
}

func NewPostService(
	repo repository.PostRepository,
	q queue.Queue,
	cat catalog.Catalog,
	src SettingsSource,
	platforms PlatformSet,
	logger *zap.Logger,
) *PostService {
	return &PostService{repo: repo, q: q, catalog: cat, settings: src, platforms: platforms, logger: logger}
}

// Submit validates, persists and enqueues a post.
//
// If the task cannot be enqueued the post is marked failed, since nothing
// would ever pick it up, and an ErrQueueUnavailable error is returned along
// with the failed post.
func (s *PostService) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Post, Ack, error) {
	now := time.Now().UTC()
	platforms, err := s.validate(req, now)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.catalog.Product(ctx, req.ProductID); err != nil {
		return nil, "", err
	}

	post := &domain.Post{
		ProductID:   req.ProductID,
		UserID:      req.UserID,
		Platforms:   platforms,
		Message:     strings.TrimSpace(req.Message),
		ImageRef:    req.ImageRef,
		CreatedAt:   now,
		ScheduledAt: req.ScheduledAt,
	}
	if _, err := s.repo.Create(ctx, post); err != nil {
		return nil, "", fmt.Errorf("persist post: %w", err)
	}

	log := s.logger.With(zap.String("post_id", post.ID), zap.String("product_id", post.ProductID))
	task := queue.Task{PostID: post.ID, Action: post.Action()}
	if err := s.q.Enqueue(ctx, task); err != nil {
		log.Error("enqueue failed, marking post failed", zap.Error(err))
		if serr := s.repo.SetStatus(ctx, post.ID, domain.StatusFailed, nil); serr != nil {
			log.Error("failed to mark unqueued post as failed", zap.Error(serr))
		} else {
			post.Status = domain.StatusFailed
		}
		return post, "", fmt.Errorf("%w: %w", domain.ErrQueueUnavailable, err)
	}

	ack := AckPublishing
	if task.Action == domain.ActionSchedule {
		ack = AckScheduled
	}
	log.Info("post submitted", zap.String("ack", string(ack)))
	return post, ack, nil
}

// Resubmit copies a failed post into a brand-new post published now.
// Platforms that succeeded the first time are posted to again.
func (s *PostService) Resubmit(ctx context.Context, id, userID string) (*domain.Post, Ack, error) {
	orig, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if orig.Status != domain.StatusFailed {
		return nil, "", domain.Validationf("only failed posts can be resubmitted, post %s is %s", orig.ID, orig.Status)
	}
	if userID == "" {
		userID = orig.UserID
	}
	return s.Submit(ctx, domain.SubmitRequest{
		ProductID: orig.ProductID,
		UserID:    userID,
		Platforms: orig.Platforms,
		Message:   orig.Message,
		ImageRef:  orig.ImageRef,
	})
}

func (s *PostService) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PostService) List(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, int, error) {
	return s.repo.List(ctx, filter)
}

// ShareDefaults renders the default message for a product and lists the
// platforms an operator may pick.
func (s *PostService) ShareDefaults(ctx context.Context, productID string) (*ShareDefaults, error) {
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	snap := s.settings.Snapshot()

	return &ShareDefaults{
		ProductID:              product.ID,
		Message:                RenderTemplate(snap.DefaultMessageTemplate, product),
		Platforms:              s.available(snap),
		AllowedImageExtensions: slices.Clone(AllowedImageExtensions),
	}, nil
}

// RenderTemplate replaces [product:title] and [product:url] tokens.
func RenderTemplate(tmpl string, p *catalog.Product) string {
	return strings.NewReplacer(
		"[product:title]", p.Title,
		"[product:url]", p.URL,
	).Replace(tmpl)
}

// available lists platforms that are both enabled and registered, in the
// order the settings enable them.
func (s *PostService) available(snap settings.Snapshot) []domain.Platform {
	registered := s.platforms.Platforms()
	out := make([]domain.Platform, 0, len(snap.EnabledPlatforms))
	for _, p := range snap.EnabledPlatforms {
		if slices.Contains(registered, p) {
			out = append(out, p)
		}
	}
	return out
}

// validate checks a submission and returns its platforms de-duplicated in
// the order given.
func (s *PostService) validate(req domain.SubmitRequest, now time.Time) ([]domain.Platform, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, domain.Validationf("product id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.Validationf("message is required")
	}
	if req.ScheduledAt != nil && !req.ScheduledAt.After(now) {
		return nil, domain.Validationf("scheduled time must be in the future")
	}
	if req.ImageRef != nil {
		if err := checkImageExtension(*req.ImageRef); err != nil {
			return nil, err
		}
	}

	available := s.available(s.settings.Snapshot())
	var platforms []domain.Platform
	for _, p := range req.Platforms {
		p = domain.Platform(strings.ToLower(strings.TrimSpace(string(p))))
		if slices.Contains(platforms, p) {
			continue
		}
		if !slices.Contains(available, p) {
			return nil, domain.Validationf("platform %q is not available", p)
		}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		return nil, domain.Validationf("at least one platform is required")
	}
	return platforms, nil
}

func checkImageExtension(ref string) error {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(ref)), ".")
	if ext == "" || slices.Contains(AllowedImageExtensions, ext) {
		return nil
	}
	return domain.Validationf("image type %q is not allowed, use one of %s", ext, strings.Join(AllowedImageExtensions, ", "))
}
