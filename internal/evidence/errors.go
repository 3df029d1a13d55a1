package evidence

import (
	"errors"
	"net/http"
)

// Domain errors for evidence store operations.
var (
	ErrNotFound    = errors.New("proof record not found")
	ErrExists      = errors.New("proof record already exists")
	ErrCASConflict = errors.New("chain tip changed concurrently")
	ErrInvalidKey  = errors.New("invalid evidence key")
)

// MapHTTPStatus maps evidence domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidKey) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
