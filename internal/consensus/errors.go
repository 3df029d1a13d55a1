package consensus

import (
	"errors"
	"net/http"
)

// Domain errors for consensus operations.
var (
	ErrNotFound      = errors.New("voting session not found")
	ErrDuplicate     = errors.New("voting session already exists")
	ErrSessionSealed = errors.New("voting session is sealed")
	ErrInvalidVote   = errors.New("invalid vote")
)

// MapHTTPStatus maps consensus domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrSessionSealed) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidVote) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
