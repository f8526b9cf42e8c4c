package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shopcast/social-publisher/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	PostsPublished  prometheus.Counter
	PostsFailed     prometheus.Counter
	PostsDeferred   prometheus.Counter
	TasksDiscarded  prometheus.Counter
	PlatformPublish *prometheus.CounterVec
	PlatformLatency *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PostsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_published_total",
			Help: "Posts published to every requested platform.",
		}),
		PostsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_failed_total",
			Help: "Posts where at least one platform failed.",
		}),
		PostsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_deferred_total",
			Help: "Scheduled posts put back on the queue because they were not yet due.",
		}),
		TasksDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_discarded_total",
			Help: "Queue tasks dropped because their post no longer exists.",
		}),
		PlatformPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platform_publish_total",
			Help: "Adapter invocations by platform and outcome.",
		}, []string{"platform", "outcome"}),
		PlatformLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platform_publish_seconds",
			Help:    "Latency of a single platform publish, including rate limit waits.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Tasks waiting on the publish queue.",
		}),
	}

	reg.MustRegister(
		m.PostsPublished,
		m.PostsFailed,
		m.PostsDeferred,
		m.TasksDiscarded,
		m.PlatformPublish,
		m.PlatformLatency,
		m.QueueDepth,
	)

	return m
}

// PlatformHook returns the per-platform callback expected by the publisher.
func (m *Metrics) PlatformHook() func(domain.Platform, error, time.Duration) {
	return func(p domain.Platform, err error, latency time.Duration) {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		m.PlatformPublish.WithLabelValues(string(p), outcome).Inc()
		m.PlatformLatency.WithLabelValues(string(p)).Observe(latency.Seconds())
	}
}

// WorkerHooks returns the metric callback functions expected by worker.MetricHooks.
func (m *Metrics) WorkerHooks() (
	onPublished func(),
	onFailed func(),
	onDeferred func(),
	onDiscarded func(),
) {
	return m.PostsPublished.Inc, m.PostsFailed.Inc, m.PostsDeferred.Inc, m.TasksDiscarded.Inc
}
