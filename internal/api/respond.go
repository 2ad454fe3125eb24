// Package api exposes the datastore over an HTTP JSON API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/internal/datastore"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := ErrorResponse{Error: message, RequestID: requestID}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("failed to encode error response")
	}
}

// writeStoreError maps datastore sentinel errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFrom(r)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), requestID)
	case errors.Is(err, datastore.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error(), requestID)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error(), requestID)
	}
}
