package domain

// CartLine is one product-and-quantity pairing in a user's cart. The product
// is referenced, not copied: the price shown is always the live catalog
// price at read time.
type CartLine struct {
	ID       string      `json:"id"`
	Product  CartProduct `json:"product"`
	Quantity int         `json:"quantity"`
}

// CartProduct is the slice of Product a cart line exposes.
type CartProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image,omitempty"`
}

// Cart holds at most one line per distinct product. Subtotal is derived from
// live prices on every read and never stored.
type Cart struct {
	UserID   string     `json:"-"`
	Items    []CartLine `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

func (c *Cart) ComputeSubtotal() int64 {
	var sum int64
	for _, line := range c.Items {
		sum += int64(line.Quantity) * line.Product.Price
	}
	return sum
}
