package shopapi

import (
	"context"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/models"
)

// ErrNotFound — ресурс отсутствует на бэкенде (ортогонально сетевым ошибкам).
var ErrNotFound = errors.New("not found")

// APIError несёт текст ошибки бэкенда дословно: вызывающий код обязан
// показывать именно его, а не общую заглушку.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type LoginResult struct {
	Token string
	User  models.User
}

type ShippingAddress struct {
	ShippingAddress string
	Pincode         string
}

type CheckoutSessionInput struct {
	Amount        float64
	CustomerEmail string
	CustomerName  string
}

// PaymentSession — ответ server-side верификации платёжной сессии.
// Клиент доверяет только этому ответу, не query-флагам из redirect URL.
type PaymentSession struct {
	Status          string
	PaymentIntentID string
}

type OrderInput struct {
	ShippingAddress string
	Pincode         string
	PaymentMethod   string
	PaymentIntentID string
}

type Client interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Profile(ctx context.Context, token string) (models.User, error)

	GetCart(ctx context.Context, token string) ([]models.CartItem, error)
	UpdateCartItem(ctx context.Context, token, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, token, productID string) error

	GetShippingAddress(ctx context.Context, token string) (ShippingAddress, error)
	PutShippingAddress(ctx context.Context, token string, addr ShippingAddress) error

	CreateCheckoutSession(ctx context.Context, token string, in CheckoutSessionInput) (redirectURL string, err error)
	VerifySession(ctx context.Context, token, sessionID string) (PaymentSession, error)

	CreateOrder(ctx context.Context, token string, in OrderInput) (models.Order, error)
	GetOrder(ctx context.Context, token, orderID string) (models.Order, error)
}
