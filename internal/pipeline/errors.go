package pipeline

import (
	"errors"
	"net/http"
)

// Domain errors for pipeline operations.
var (
	ErrNotFound   = errors.New("pipeline instance not found")
	ErrDuplicate  = errors.New("pipeline instance already exists")
	ErrTerminal   = errors.New("terminal stage failure")
	ErrNotRunning = errors.New("pipeline instance is not running")
)

// MapHTTPStatus maps pipeline domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
