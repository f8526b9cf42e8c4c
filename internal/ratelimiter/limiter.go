package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/shopcast/social-publisher/internal/domain"
)

// PlatformLimiters holds one token bucket per platform, created on first use
// so newly registered platforms are covered without configuration.
// Burst equals the rate: no saved-up burst above the per-second maximum.
type PlatformLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[domain.Platform]*rate.Limiter
}

// New creates PlatformLimiters allowing ratePerSec calls per second to each
// platform. A non-positive rate disables limiting.
func New(ratePerSec int) *PlatformLimiters {
	l := &PlatformLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[domain.Platform]*rate.Limiter),
	}
	if ratePerSec <= 0 {
		l.limit = rate.Inf
		l.burst = 0
	}
	return l
}

func (pl *PlatformLimiters) get(p domain.Platform) *rate.Limiter {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	lim, ok := pl.limiters[p]
	if !ok {
		lim = rate.NewLimiter(pl.limit, pl.burst)
		pl.limiters[p] = lim
	}
	return lim
}

// Wait blocks until the platform's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (pl *PlatformLimiters) Wait(ctx context.Context, p domain.Platform) error {
	return pl.get(p).Wait(ctx)
}
