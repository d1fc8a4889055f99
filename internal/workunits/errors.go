package workunits

import (
	"errors"
	"net/http"
)

// Domain errors for work unit operations.
var (
	ErrNotFound        = errors.New("work unit not found")
	ErrDuplicate       = errors.New("work unit already exists")
	ErrMissingWorkflow = errors.New("work unit references no known workflow")
	ErrDone            = errors.New("work unit already finalized")
)

// MapHTTPStatus maps work unit domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrMissingWorkflow) || errors.Is(err, ErrDone) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
