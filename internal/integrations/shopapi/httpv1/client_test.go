package httpv1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/craftline/storefront/internal/integrations/shopapi"
)

func TestClient_GetCart_PlainShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cart", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "items": [
    {"id": 11, "productId": 7, "quantity": 2,
     "product": {"id": 7, "name": "Linen Shirt", "image": "/img/7.jpg", "price": 1200, "size": "M", "color": "white"}}
  ]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	items, err := c.GetCart(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "7", items[0].ProductID)
	require.Equal(t, "Linen Shirt", items[0].Name)
	require.Equal(t, 1200.0, items[0].Price)
	require.Equal(t, 2, items[0].Quantity)
}

func TestClient_GetCart_DoubleNestedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"items":[
  {"id":"a1","productId":"p1","quantity":1,"name":"Scarf","price":400,"originalPrice":600}
]}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	items, err := c.GetCart(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "p1", items[0].ProductID)
	require.NotNil(t, items[0].OriginalPrice)
	require.Equal(t, 600.0, *items[0].OriginalPrice)
}

func TestClient_GetCart_MissingItemsIsEmptyCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	items, err := c.GetCart(context.Background(), "t")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestClient_ServerErrorTextIsKeptVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient stock for product 7"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.UpdateCartItem(context.Background(), "t", "7", 3)
	require.Error(t, err)

	var apiErr *shopapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "insufficient stock for product 7", apiErr.Message)
}

func TestClient_NotFoundIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"order not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetOrder(context.Background(), "t", "999")
	require.ErrorIs(t, err, shopapi.ErrNotFound)
}

func TestClient_VerifySession_FallsBackToSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payment/verify-session/sess_123", r.URL.Path)
		_, _ = w.Write([]byte(`{"session":{"status":"paid","id":"sess_123"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ps, err := c.VerifySession(context.Background(), "t", "sess_123")
	require.NoError(t, err)
	require.Equal(t, "paid", ps.Status)
	require.Equal(t, "sess_123", ps.PaymentIntentID)
}

func TestClient_CreateOrder_UnwrapsOrderEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"order":{"id":987,"orderNumber":"ORD-987","totalAmount":2400,"status":"CONFIRMED"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	o, err := c.CreateOrder(context.Background(), "t", shopapi.OrderInput{
		ShippingAddress: "12 MG Road",
		Pincode:         "560001",
		PaymentMethod:   "card",
		PaymentIntentID: "pi_1",
	})
	require.NoError(t, err)
	require.Equal(t, "987", o.ID)
	require.Equal(t, "ORD-987", o.OrderNumber)
}

func TestClient_CheckoutSession_RequiresURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateCheckoutSession(context.Background(), "t", shopapi.CheckoutSessionInput{Amount: 500})
	require.Error(t, err)
}
