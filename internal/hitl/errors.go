package hitl

import (
	"errors"
	"net/http"
)

// Domain errors for review gate operations.
var (
	ErrNotFound        = errors.New("review ticket not found")
	ErrAlreadyResolved = errors.New("review ticket already resolved")
	ErrNoPendingReview = errors.New("no pending review for claim")
)

// MapHTTPStatus maps review gate errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoPendingReview):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyResolved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
