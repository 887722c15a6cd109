package messages

import "time"

// OrderUpdated публикуется воркером после каждой проверки заказа.
type OrderUpdated struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	CheckedAt time.Time `json:"checked_at"`

	OrderStatus    string `json:"order_status,omitempty"`
	DeliveryStatus string `json:"delivery_status,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Error *string `json:"error,omitempty"`
}
