package claims

import (
	"errors"
	"net/http"
)

// Domain errors for claim operations.
var (
	ErrNotFound     = errors.New("claim not found")
	ErrDuplicate    = errors.New("claim already exists")
	ErrInvalidClaim = errors.New("invalid claim")
	ErrNoProof      = errors.New("proof not yet available")
)

// MapHTTPStatus maps claim domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidClaim):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoProof):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
