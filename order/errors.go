package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order: not found")
	ErrForbidden         = errors.New("order: actor may not perform this action")
	ErrInvalidTransition = errors.New("order: invalid transition")
	ErrInsufficientKYC   = errors.New("order: insufficient kyc status")
	// ErrPersistence wraps storage failures; the whole transition was rolled back and
	// the request may be retried.
	ErrPersistence = errors.New("order: persistence failure")

	ErrInvalidQuantity = errors.New("order: quantity must be positive and fit in 32 bits")
	ErrTotalTooLarge   = errors.New("order: total amount exceeds the storable maximum")
	ErrSelfPurchase    = errors.New("order: sellers cannot buy their own products")
	ErrInvalidStatus   = errors.New("order: unknown status filter")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// rejectionReason labels a rejection for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInsufficientKYC):
		return "kyc_required"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
