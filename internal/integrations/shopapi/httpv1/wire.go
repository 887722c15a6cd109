package httpv1

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/craftline/storefront/internal/models"
)

// flexID принимает и строковые, и числовые идентификаторы:
// бэкенд отдаёт их по-разному в разных ручках.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type userWire struct {
	ID    flexID `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (w userWire) toModel() models.User {
	return models.User{ID: string(w.ID), Email: w.Email, Name: w.Name}
}

type productWire struct {
	ID            flexID   `json:"id"`
	Name          string   `json:"name"`
	Image         string   `json:"image"`
	Size          string   `json:"size"`
	Color         string   `json:"color"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice"`
}

// cartItemWire покрывает обе формы строки корзины: плоскую и с вложенным product.
type cartItemWire struct {
	ID        flexID `json:"id"`
	ProductID flexID `json:"productId"`
	Quantity  int    `json:"quantity"`

	Name          string       `json:"name"`
	Image         string       `json:"image"`
	Size          string       `json:"size"`
	Color         string       `json:"color"`
	Price         float64      `json:"price"`
	OriginalPrice *float64     `json:"originalPrice"`
	Product       *productWire `json:"product"`
}

func (w cartItemWire) toModel() models.CartItem {
	it := models.CartItem{
		ID:            string(w.ID),
		ProductID:     string(w.ProductID),
		Name:          w.Name,
		Image:         w.Image,
		Size:          w.Size,
		Color:         w.Color,
		Price:         w.Price,
		OriginalPrice: w.OriginalPrice,
		Quantity:      w.Quantity,
	}
	if p := w.Product; p != nil {
		if it.ProductID == "" {
			it.ProductID = string(p.ID)
		}
		if it.Name == "" {
			it.Name = p.Name
		}
		if it.Image == "" {
			it.Image = p.Image
		}
		if it.Size == "" {
			it.Size = p.Size
		}
		if it.Color == "" {
			it.Color = p.Color
		}
		if it.Price == 0 {
			it.Price = p.Price
		}
		if it.OriginalPrice == nil {
			it.OriginalPrice = p.OriginalPrice
		}
	}
	if it.Quantity < 1 {
		it.Quantity = 1
	}
	return it
}

type orderItemWire struct {
	ID        flexID       `json:"id"`
	ProductID flexID       `json:"productId"`
	Quantity  int          `json:"quantity"`
	Price     float64      `json:"price"`
	Product   *productWire `json:"product"`
}

type paymentWire struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Method          string `json:"method"`
	Status          string `json:"status"`
}

type trackingWire struct {
	Status               string     `json:"status"`
	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate"`
	ActualDeliveryDate   *time.Time `json:"actualDeliveryDate"`
	CourierName          *string    `json:"courierName"`
	CourierTrackingID    *string    `json:"courierTrackingId"`
}

type orderWire struct {
	ID              flexID          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	TotalAmount     float64         `json:"totalAmount"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	Pincode         string          `json:"pincode"`
	PaymentMethod   string          `json:"paymentMethod"`
	CreatedAt       time.Time       `json:"createdAt"`
	Items           []orderItemWire `json:"items"`
	Payment         *paymentWire    `json:"payment"`
	DeliveryTracking *trackingWire  `json:"deliveryTracking"`
}

func (w orderWire) toModel() models.Order {
	o := models.Order{
		ID:              string(w.ID),
		OrderNumber:     w.OrderNumber,
		TotalAmount:     w.TotalAmount,
		Status:          w.Status,
		ShippingAddress: w.ShippingAddress,
		Pincode:         w.Pincode,
		PaymentMethod:   w.PaymentMethod,
		CreatedAt:       w.CreatedAt,
	}
	for _, iw := range w.Items {
		oi := models.OrderItem{
			ID:        string(iw.ID),
			ProductID: string(iw.ProductID),
			Price:     iw.Price,
			Quantity:  iw.Quantity,
		}
		if p := iw.Product; p != nil {
			oi.Name = p.Name
			oi.Image = p.Image
			oi.Size = p.Size
			oi.Color = p.Color
			if oi.ProductID == "" {
				oi.ProductID = string(p.ID)
			}
			if oi.Price == 0 {
				oi.Price = p.Price
			}
		}
		o.Items = append(o.Items, oi)
	}
	if w.Payment != nil {
		o.Payment = &models.Payment{
			PaymentIntentID: w.Payment.PaymentIntentID,
			Method:          w.Payment.Method,
			Status:          w.Payment.Status,
		}
	}
	if w.DeliveryTracking != nil {
		o.DeliveryTracking = &models.DeliveryTracking{
			Status:               w.DeliveryTracking.Status,
			ExpectedDeliveryDate: w.DeliveryTracking.ExpectedDeliveryDate,
			ActualDeliveryDate:   w.DeliveryTracking.ActualDeliveryDate,
			CourierName:          w.DeliveryTracking.CourierName,
			CourierTrackingID:    w.DeliveryTracking.CourierTrackingID,
		}
	}
	return o
}
