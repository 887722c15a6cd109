package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
)

// FakeClient — локальная заглушка бэкенда для разработки и тестов:
// корзина и заказы живут в памяти, платёжная сессия всегда "paid".
type FakeClient struct {
	mu sync.Mutex

	carts    map[string][]models.CartItem
	orders   map[string]models.Order
	address  map[string]shopapi.ShippingAddress
	sessions map[string]string // sessionID -> payment status

	nextOrder int
}

func New() *FakeClient {
	return &FakeClient{
		carts:    map[string][]models.CartItem{},
		orders:   map[string]models.Order{},
		address:  map[string]shopapi.ShippingAddress{},
		sessions: map[string]string{},
	}
}

func (f *FakeClient) Login(ctx context.Context, email, password string) (shopapi.LoginResult, error) {
	if email == "" || password == "" {
		return shopapi.LoginResult{}, &shopapi.APIError{StatusCode: 400, Message: "email and password are required"}
	}
	name := strings.SplitN(email, "@", 2)[0]
	return shopapi.LoginResult{
		Token: "fake-" + email,
		User:  models.User{ID: email, Email: email, Name: name},
	}, nil
}

func (f *FakeClient) Profile(ctx context.Context, token string) (models.User, error) {
	email := strings.TrimPrefix(token, "fake-")
	return models.User{ID: email, Email: email, Name: strings.SplitN(email, "@", 2)[0]}, nil
}

// SeedCart наполняет корзину токена (для тестов и демо-режима).
func (f *FakeClient) SeedCart(token string, items []models.CartItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[token] = append([]models.CartItem(nil), items...)
}

// SeedSession задаёт статус платёжной сессии.
func (f *FakeClient) SeedSession(sessionID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = status
}

func (f *FakeClient) GetCart(ctx context.Context, token string) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CartItem(nil), f.carts[token]...), nil
}

func (f *FakeClient) UpdateCartItem(ctx context.Context, token, productID string, quantity int) error {
	if quantity < 1 {
		return &shopapi.APIError{StatusCode: 400, Message: "quantity must be at least 1"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.carts[token] {
		if it.ProductID == productID {
			f.carts[token][i].Quantity = quantity
			return nil
		}
	}
	return errors.Wrap(shopapi.ErrNotFound, "cart item not found")
}

func (f *FakeClient) RemoveCartItem(ctx context.Context, token, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.carts[token]
	out := items[:0]
	for _, it := range items {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	f.carts[token] = out
	return nil
}

func (f *FakeClient) GetShippingAddress(ctx context.Context, token string) (shopapi.ShippingAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address[token], nil
}

func (f *FakeClient) PutShippingAddress(ctx context.Context, token string, addr shopapi.ShippingAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address[token] = addr
	return nil
}

func (f *FakeClient) CreateCheckoutSession(ctx context.Context, token string, in shopapi.CheckoutSessionInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("sess_fake_%d", len(f.sessions)+1)
	f.sessions[id] = models.PaymentSessionPaid
	return "https://pay.example.test/checkout/" + id, nil
}

func (f *FakeClient) VerifySession(ctx context.Context, token, sessionID string) (shopapi.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return shopapi.PaymentSession{}, errors.Wrap(shopapi.ErrNotFound, "payment session not found")
	}
	return shopapi.PaymentSession{Status: st, PaymentIntentID: "pi_" + sessionID}, nil
}

func (f *FakeClient) CreateOrder(ctx context.Context, token string, in shopapi.OrderInput) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.carts[token]
	if len(items) == 0 {
		return models.Order{}, &shopapi.APIError{StatusCode: 400, Message: "cart is empty"}
	}
	var orderItems []models.OrderItem
	for _, it := range items {
		orderItems = append(orderItems, models.OrderItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Size:      it.Size,
			Color:     it.Color,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	sum := models.Summarize(items)

	f.nextOrder++
	eta := time.Now().UTC().Add(5 * 24 * time.Hour)
	o := models.Order{
		ID:              fmt.Sprintf("%d", f.nextOrder),
		OrderNumber:     fmt.Sprintf("ORD-%04d", f.nextOrder),
		TotalAmount:     sum.Total,
		Status:          "CONFIRMED",
		ShippingAddress: in.ShippingAddress,
		Pincode:         in.Pincode,
		PaymentMethod:   in.PaymentMethod,
		CreatedAt:       time.Now().UTC(),
		Items:           orderItems,
		Payment: &models.Payment{
			PaymentIntentID: in.PaymentIntentID,
			Method:          in.PaymentMethod,
			Status:          models.PaymentSessionPaid,
		},
		DeliveryTracking: &models.DeliveryTracking{
			Status:               models.DeliveryStatusOrdered,
			ExpectedDeliveryDate: &eta,
		},
	}
	f.orders[o.ID] = o
	// Заказ создан — серверная корзина пустеет.
	f.carts[token] = nil
	return o, nil
}

func (f *FakeClient) GetOrder(ctx context.Context, token, orderID string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return models.Order{}, errors.Wrap(shopapi.ErrNotFound, "order not found")
	}
	return o, nil
}

// AdvanceDelivery переводит трекинг заказа на следующий шаг шкалы (демо-режим).
func (f *FakeClient) AdvanceDelivery(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.DeliveryTracking == nil {
		return
	}
	i, ok := models.DeliveryStatusIndex(o.DeliveryTracking.Status)
	if !ok {
		return
	}
	steps := models.DeliveryStatuses()
	if i+1 < len(steps) {
		o.DeliveryTracking.Status = steps[i+1]
		if steps[i+1] == models.DeliveryStatusDelivered {
			now := time.Now().UTC()
			o.DeliveryTracking.ActualDeliveryDate = &now
		}
		f.orders[orderID] = o
	}
}
