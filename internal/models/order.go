package models

import "time"

// Линейная шкала статусов доставки (порядок важен).
const (
	DeliveryStatusOrdered        = "ORDERED"
	DeliveryStatusPacked         = "PACKED"
	DeliveryStatusShipped        = "SHIPPED"
	DeliveryStatusInTransit      = "IN_TRANSIT"
	DeliveryStatusOutForDelivery = "OUT_FOR_DELIVERY"
	DeliveryStatusDelivered      = "DELIVERED"

	// RETURNED стоит вне линейной шкалы: у него нет индекса прогресса.
	DeliveryStatusReturned = "RETURNED"
)

var deliveryStatusOrder = []string{
	DeliveryStatusOrdered,
	DeliveryStatusPacked,
	DeliveryStatusShipped,
	DeliveryStatusInTransit,
	DeliveryStatusOutForDelivery,
	DeliveryStatusDelivered,
}

// DeliveryStatusIndex возвращает позицию статуса в линейной шкале.
// Для RETURNED и неизвестных статусов ok=false — рендерить отдельным бейджем,
// а не шагом прогресса.
func DeliveryStatusIndex(status string) (int, bool) {
	for i, s := range deliveryStatusOrder {
		if s == status {
			return i, true
		}
	}
	return -1, false
}

// DeliveryStatuses возвращает линейную шкалу в порядке прохождения.
func DeliveryStatuses() []string {
	out := make([]string, len(deliveryStatusOrder))
	copy(out, deliveryStatusOrder)
	return out
}

// DeliveryStatusTerminal — дальше статус не меняется, опрашивать нечего.
func DeliveryStatusTerminal(status string) bool {
	return status == DeliveryStatusDelivered || status == DeliveryStatusReturned
}

type OrderItem struct {
	ID        string
	ProductID string
	Name      string
	Image     string
	Size      string
	Color     string
	Price     float64
	Quantity  int
}

type Payment struct {
	PaymentIntentID string
	Method          string
	Status          string
}

type DeliveryTracking struct {
	Status               string
	ExpectedDeliveryDate *time.Time
	ActualDeliveryDate   *time.Time
	CourierName          *string
	CourierTrackingID    *string
}

type Order struct {
	ID              string
	OrderNumber     string
	TotalAmount     float64
	Status          string
	ShippingAddress string
	Pincode         string
	PaymentMethod   string
	CreatedAt       time.Time
	Items           []OrderItem
	Payment         *Payment
	DeliveryTracking *DeliveryTracking
}

type User struct {
	ID    string
	Email string
	Name  string
}

// PendingCheckout — данные адреса, пережидающие редирект на оплату.
// Живут строго до терминального исхода checkout-а.
type PendingCheckout struct {
	UserID          string
	ShippingAddress string
	Pincode         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Статусы платёжной сессии на стороне провайдера.
const (
	PaymentSessionPending  = "pending"
	PaymentSessionPaid     = "paid"
	PaymentSessionFailed   = "failed"
	PaymentSessionCanceled = "canceled"
)
