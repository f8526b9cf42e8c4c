package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopcast/social-publisher/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable),
		errors.Is(err, domain.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "publish queue unavailable, the post was marked failed")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
