package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/knowledge"
	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/session"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader cannot reach the client; they are only
// logged by the caller's middleware via the 200 status already sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps service-layer sentinels to status codes:
// validation sentinels become 4xx, not-found becomes 404, anything else
// is a 500 with the detail kept out of the response body.
func writeServiceError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, knowledge.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, knowledge.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", err.Error())
	case errors.Is(err, knowledge.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "empty_document", err.Error())
	case errors.Is(err, knowledge.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "invalid_category", err.Error())
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "document not found")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// ownerID extracts the owner from the request header.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Owner-Id")
}

// requireOwner writes a 400 and returns "" when the owner header is
// missing.
func requireOwner(w http.ResponseWriter, r *http.Request) string {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing_owner", "X-Owner-Id header is required")
	}
	return owner
}
