package vector

import "errors"

// Domain errors for vector index operations.
var (
	ErrInvalidVector = errors.New("invalid vector")
	ErrUnavailable   = errors.New("vector index unavailable")
)
