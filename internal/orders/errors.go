package orders

import "errors"

var (
	// ErrEmptyCart is returned when checkout finds zero lines. A retried
	// checkout lands here instead of creating a duplicate order.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrProductUnavailable is returned when a cart line references a
	// product that vanished from the catalog between add and checkout.
	ErrProductUnavailable = errors.New("product no longer available")

	// ErrInvalidTransition is returned for status updates the order state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)
