package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/queue"
)

// DepthReporter samples the queue length on a fixed interval and hands it to
// a gauge callback.
type DepthReporter struct {
	q        queue.Queue
	interval time.Duration
	report   func(int)
	logger   *zap.Logger
}

func NewDepthReporter(q queue.Queue, interval time.Duration, report func(int), logger *zap.Logger) *DepthReporter {
	return &DepthReporter{q: q, interval: interval, report: report, logger: logger}
}

// Run ticks every interval until ctx is cancelled.
func (r *DepthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample(ctx)
		}
	}
}

func (r *DepthReporter) sample(ctx context.Context) {
	n, err := r.q.Len(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("queue depth unavailable", zap.Error(err))
		}
		return
	}
	r.report(n)
}
