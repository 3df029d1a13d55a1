package metering

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for metering operations.
var (
	ErrUnauthorized  = errors.New("unknown or disabled api key")
	ErrQuotaExceeded = errors.New("daily claim quota exceeded")
	ErrForbidden     = errors.New("key role not permitted")
)

// PaymentRequiredError signals that the caller's tier allows overage at
// a price. Handlers surface it as 402 with X-Price and X-Currency.
type PaymentRequiredError struct {
	Price    string
	Currency string
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required: %s %s per claim", e.Price, e.Currency)
}

// MapHTTPStatus maps metering errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var payment *PaymentRequiredError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &payment):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
