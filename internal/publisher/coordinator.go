// Package publisher fans a post out to its platforms and aggregates the
// per-platform outcomes.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/platform"
	"github.com/shopcast/social-publisher/internal/ratelimiter"
	"github.com/shopcast/social-publisher/internal/settings"
)

type Options struct {
	// Concurrency bounds how many platforms of one post are in flight.
	Concurrency int
	// CallTimeout bounds a single adapter call; zero means no extra bound.
	CallTimeout time.Duration
}

// Coordinator attempts every requested platform, each inside its own failure
// boundary: an error or a panic from one adapter becomes that platform's
// outcome and never affects the others. Successful publishes are not undone
// when a sibling fails.
type Coordinator struct {
	registry *platform.Registry
	limiter  *ratelimiter.PlatformLimiters
	opts     Options
	logger   *zap.Logger

	// onOutcome reports every platform attempt; main points it at metrics.
	onOutcome func(p domain.Platform, err error, latency time.Duration)
}

// NewCoordinator builds a Coordinator. limiter and onOutcome may be nil.
func NewCoordinator(
	registry *platform.Registry,
	limiter *ratelimiter.PlatformLimiters,
	opts Options,
	logger *zap.Logger,
	onOutcome func(domain.Platform, error, time.Duration),
) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if onOutcome == nil {
		onOutcome = func(domain.Platform, error, time.Duration) {}
	}
	return &Coordinator{
		registry:  registry,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
		onOutcome: onOutcome,
	}
}

// Publish reports one outcome per platform, in the order given.
func (c *Coordinator) Publish(ctx context.Context, post *domain.Post, platforms []domain.Platform, snap settings.Snapshot) domain.PublishResult {
	outcomes := make([]domain.PlatformOutcome, len(platforms))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, p := range platforms {
		g.Go(func() error {
			start := time.Now()
			err := c.publishOne(ctx, post, p, snap)
			elapsed := time.Since(start)

			outcomes[i] = domain.PlatformOutcome{Platform: p, Err: err}
			c.onOutcome(p, err, elapsed)
			if err != nil {
				c.logger.Warn("platform publish failed",
					zap.String("post_id", post.ID),
					zap.String("platform", string(p)),
					zap.Duration("latency", elapsed),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return domain.PublishResult{Outcomes: outcomes}
}

func (c *Coordinator) publishOne(ctx context.Context, post *domain.Post, p domain.Platform, snap settings.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s adapter panicked: %v", p, r)
		}
	}()

	if !snap.Enabled(p) {
		return domain.Configf("platform %s is not enabled", p)
	}
	adapter, ok := c.registry.Get(p)
	if !ok {
		return domain.Configf("no adapter registered for platform %s", p)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, p); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	return adapter.Publish(ctx, platform.Request{Post: post, Settings: snap})
}
