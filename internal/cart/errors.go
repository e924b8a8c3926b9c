package cart

import "errors"

var (
	// ErrProductNotFound is returned when an add references a product id
	// that does not resolve in the catalog.
	ErrProductNotFound = errors.New("product not found")

	// ErrLineNotFound is returned when a quantity change references a line
	// absent from the caller's cart.
	ErrLineNotFound = errors.New("cart line not found")
)
