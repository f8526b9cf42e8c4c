package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/shopcast/social-publisher/internal/api/middleware"
	"github.com/shopcast/social-publisher/internal/domain"
	"github.com/shopcast/social-publisher/internal/service"
)

// PostHandler serves submission and status polling for posts.
type PostHandler struct {
	svc    *service.PostService
	logger *zap.Logger
}

func NewPostHandler(svc *service.PostService, logger *zap.Logger) *PostHandler {
	return &PostHandler{svc: svc, logger: logger}
}

type submitResponse struct {
	Post *domain.Post `json:"post"`
	Ack  service.Ack  `json:"ack"`
}

// Submit handles POST /api/v1/products/{productID}/posts
//
// The response only acknowledges the submission; delivery is asynchronous
// and its outcome shows up in the post's status.
func (h *PostHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ProductID = chi.URLParam(r, "productID")
	req.UserID = apimw.GetUserID(r.Context())

	post, ack, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.logger.Warn("submit post failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("product_id", req.ProductID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, submitResponse{Post: post, Ack: ack})
}

// Resubmit handles POST /api/v1/posts/{id}/resubmit
func (h *PostHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	post, ack, err := h.svc.Resubmit(r.Context(), chi.URLParam(r, "id"), apimw.GetUserID(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, submitResponse{Post: post, Ack: ack})
}

// GetByID handles GET /api/v1/posts/{id}
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, post)
}

// List handles GET /api/v1/posts?status=&product_id=&page=&limit=
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePostFilter(r)
	if err != nil {
		mapError(w, err)
		return
	}
	posts, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list posts failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  posts,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// ShareDefaults handles GET /api/v1/products/{productID}/share-defaults
func (h *PostHandler) ShareDefaults(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ShareDefaults(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func parsePostFilter(r *http.Request) (domain.PostFilter, error) {
	q := r.URL.Query()
	filter := domain.PostFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if s := q.Get("status"); s != "" {
		st := domain.Status(s)
		if !st.IsValid() {
			return filter, domain.Validationf("unknown status %q", s)
		}
		filter.Status = &st
	}
	if pid := q.Get("product_id"); pid != "" {
		filter.ProductID = &pid
	}
	return filter, nil
}
