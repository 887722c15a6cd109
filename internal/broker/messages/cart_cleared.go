package messages

import "time"

// CartCleared — широковещательный сигнал "серверная корзина опустела":
// заказ создан, все кэшированные представления корзины обязаны инвалидироваться.
// Без полезной нагрузки сверх идентификации, слушателей может быть несколько.
type CartCleared struct {
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id,omitempty"`
	ClearedAt time.Time `json:"cleared_at"`
}
