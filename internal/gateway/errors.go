package gateway

import "errors"

// Domain errors for gateway operations.
var (
	ErrUnknownVerifier = errors.New("unknown verifier model")
	ErrInference       = errors.New("inference call failed")
	ErrUnparseable     = errors.New("unparseable model response")
)
