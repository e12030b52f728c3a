// Package httpserver exposes the moderation API over HTTP.
//
// Handlers translate between wire shapes and the usecase layer; all domain
// errors are mapped to status codes in one place so the surface stays
// consistent.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

type detailEnvelope struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailEnvelope{Detail: detail})
}

// writeDomainError maps a domain error to a status code and message. The
// resource name fills the not-found and conflict messages so each handler
// reports its own noun.
func writeDomainError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrSellerNotFound):
		writeDetail(w, http.StatusNotFound, "Seller not found")
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeDetail(w, http.StatusConflict, resource+" already exists")
	case errors.Is(err, domain.ErrScorerNotLoaded):
		writeDetail(w, http.StatusServiceUnavailable, "Model is not loaded")
	case errors.Is(err, domain.ErrScorerFailed):
		writeDetail(w, http.StatusInternalServerError, "Model inference failed")
	default:
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}
