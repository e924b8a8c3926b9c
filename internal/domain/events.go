package domain

import "time"

type OrderPlacedEvent struct {
	OrderID     string      `json:"order_id"`
	UserID      string      `json:"user_id"`
	Lines       []OrderLine `json:"lines"`
	TotalAmount int64       `json:"total_amount"`
	PlacedAt    time.Time   `json:"placed_at"`
}
