package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/reversal"
	"relfind/internal/schemagraph"
)

// ErrRequireNotEnabled is returned when a filter carries require for an
// entity or method that does not accept it.
var ErrRequireNotEnabled = errors.New("require is not enabled")

// ErrNotFound is returned by findOne when nothing matches.
var ErrNotFound = errors.New("not found")

// StatusForError maps a find or compile error onto an HTTP status.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, reversal.ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, schemagraph.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, filter.ErrMalformedFilter),
		errors.Is(err, datastore.ErrInvalidQuery),
		errors.Is(err, ErrRequireNotEnabled),
		reversal.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// WriteError writes err as a JSON error body with the status from
// StatusForError. Server errors hide the underlying message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		StatusCode: status,
		Name:       errorName(status),
		Message:    message,
	}})
}

func errorName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BadRequestError"
	case http.StatusForbidden:
		return "ForbiddenError"
	case http.StatusNotFound:
		return "NotFoundError"
	default:
		return "InternalServerError"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
