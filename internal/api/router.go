package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/api/handler"
	apimw "github.com/shopcast/social-publisher/internal/api/middleware"
	"github.com/shopcast/social-publisher/internal/queue"
	"github.com/shopcast/social-publisher/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route.
func NewRouter(
	svc *service.PostService,
	q queue.Queue,
	checks map[string]handler.Check,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.UserID)
	r.Use(apimw.RequestLogger(logger))

	ph := handler.NewPostHandler(svc, logger)
	qh := handler.NewQueueHandler(q, logger)
	hh := handler.NewHealthHandler(checks)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/products/{productID}/posts", ph.Submit)
		r.Get("/products/{productID}/share-defaults", ph.ShareDefaults)

		r.Get("/posts", ph.List)
		r.Get("/posts/{id}", ph.GetByID)
		r.Post("/posts/{id}/resubmit", ph.Resubmit)

		r.Get("/queue", qh.Depth)
	})

	return r
}
