package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/queue"
)

// QueueHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics and are separate from
// this endpoint.
type QueueHandler struct {
	q      queue.Queue
	logger *zap.Logger
}

func NewQueueHandler(q queue.Queue, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{q: q, logger: logger}
}

// Depth handles GET /api/v1/queue
func (h *QueueHandler) Depth(w http.ResponseWriter, r *http.Request) {
	n, err := h.q.Len(r.Context())
	if err != nil {
		h.logger.Warn("queue depth unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"queue_depth": n})
}
