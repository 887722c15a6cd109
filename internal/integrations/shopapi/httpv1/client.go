package httpv1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
)

// Client ходит в commerce-бэкенд по REST-контракту (JSON, bearer-токен).
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (shopapi.LoginResult, error) {
	var out struct {
		Token string   `json:"token"`
		User  userWire `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return shopapi.LoginResult{}, err
	}
	if out.Token == "" {
		return shopapi.LoginResult{}, errors.New("login response has no token")
	}
	return shopapi.LoginResult{Token: out.Token, User: out.User.toModel()}, nil
}

func (c *Client) Profile(ctx context.Context, token string) (models.User, error) {
	var out userWire
	if err := c.doJSON(ctx, http.MethodGet, "/auth/profile", token, nil, &out); err != nil {
		return models.User{}, err
	}
	return out.toModel(), nil
}

func (c *Client) GetCart(ctx context.Context, token string) ([]models.CartItem, error) {
	var out struct {
		Items []cartItemWire `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/cart", token, nil, &out); err != nil {
		return nil, err
	}
	// Пустая/отсутствующая корзина — это пустой список, не ошибка.
	items := make([]models.CartItem, 0, len(out.Items))
	for _, w := range out.Items {
		items = append(items, w.toModel())
	}
	return items, nil
}

func (c *Client) UpdateCartItem(ctx context.Context, token, productID string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	return c.doJSON(ctx, http.MethodPut, "/cart/"+url.PathEscape(productID), token, body, nil)
}

func (c *Client) RemoveCartItem(ctx context.Context, token, productID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/cart/"+url.PathEscape(productID), token, nil, nil)
}

func (c *Client) GetShippingAddress(ctx context.Context, token string) (shopapi.ShippingAddress, error) {
	var out struct {
		ShippingAddress string `json:"shippingAddress"`
		Pincode         string `json:"pincode"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/shipping-address", token, nil, &out); err != nil {
		return shopapi.ShippingAddress{}, err
	}
	return shopapi.ShippingAddress{ShippingAddress: out.ShippingAddress, Pincode: out.Pincode}, nil
}

func (c *Client) PutShippingAddress(ctx context.Context, token string, addr shopapi.ShippingAddress) error {
	body := map[string]string{
		"shippingAddress": addr.ShippingAddress,
		"pincode":         addr.Pincode,
	}
	return c.doJSON(ctx, http.MethodPut, "/shipping-address", token, body, nil)
}

func (c *Client) CreateCheckoutSession(ctx context.Context, token string, in shopapi.CheckoutSessionInput) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	body := map[string]any{
		"amount":        in.Amount,
		"customerEmail": in.CustomerEmail,
		"customerName":  in.CustomerName,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/payment/checkout-session", token, body, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("checkout session response has no url")
	}
	return out.URL, nil
}

func (c *Client) VerifySession(ctx context.Context, token, sessionID string) (shopapi.PaymentSession, error) {
	var out struct {
		Session struct {
			Status        string `json:"status"`
			PaymentIntent string `json:"payment_intent"`
			ID            string `json:"id"`
		} `json:"session"`
	}
	path := "/payment/verify-session/" + url.PathEscape(sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return shopapi.PaymentSession{}, err
	}
	// Часть провайдеров отдаёт payment_intent, часть — только id сессии.
	intent := out.Session.PaymentIntent
	if intent == "" {
		intent = out.Session.ID
	}
	return shopapi.PaymentSession{Status: out.Session.Status, PaymentIntentID: intent}, nil
}

func (c *Client) CreateOrder(ctx context.Context, token string, in shopapi.OrderInput) (models.Order, error) {
	var out struct {
		Order orderWire `json:"order"`
	}
	body := map[string]string{
		"shippingAddress": in.ShippingAddress,
		"pincode":         in.Pincode,
		"paymentMethod":   in.PaymentMethod,
		"paymentIntentId": in.PaymentIntentID,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/orders", token, body, &out); err != nil {
		return models.Order{}, err
	}
	return out.Order.toModel(), nil
}

func (c *Client) GetOrder(ctx context.Context, token, orderID string) (models.Order, error) {
	var out struct {
		Order orderWire `json:"order"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), token, nil, &out); err != nil {
		return models.Order{}, err
	}
	return out.Order.toModel(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrap(shopapi.ErrNotFound, serverMessage(raw, resp.StatusCode))
	}
	if resp.StatusCode/100 != 2 {
		return &shopapi.APIError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(raw, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(unwrapEnvelope(raw), out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

// unwrapEnvelope снимает конверт(ы) {"data": ...}: бэкенд отдаёт ответы то
// плоско, то под data, то под data.data. Дальше этой границы форма одна.
func unwrapEnvelope(b []byte) []byte {
	for i := 0; i < 2; i++ {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(b, &env) != nil {
			return b
		}
		trimmed := bytes.TrimSpace(env.Data)
		if len(trimmed) == 0 || trimmed[0] != '{' && trimmed[0] != '[' {
			return b
		}
		b = trimmed
	}
	return b
}

// serverMessage достаёт текст ошибки сервера (error/message), если он есть.
func serverMessage(raw []byte, status int) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(unwrapEnvelope(raw), &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("shop api http %d", status)
}
