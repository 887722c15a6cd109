package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/craftline/storefront/internal/cache/rediscache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/integrations/shopapi/fake"
	"github.com/craftline/storefront/internal/models"
)

const (
	testUser  = "u1"
	testToken = "fake-u1"
)

func newService(t *testing.T, api shopapi.Client) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(api, rediscache.New(mr.Addr()), time.Minute)
}

func ptr(f float64) *float64 { return &f }

func TestRefresh_BuildsSummary(t *testing.T) {
	api := fake.New()
	api.SeedCart(testToken, []models.CartItem{
		{ID: "l1", ProductID: "p1", Name: "Jacket", Price: 400, OriginalPrice: ptr(500), Quantity: 1},
		{ID: "l2", ProductID: "p2", Name: "Jeans", Price: 600, OriginalPrice: ptr(700), Quantity: 1},
	})
	s := newService(t, api)

	v, err := s.Refresh(context.Background(), testUser, testToken)
	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	require.Equal(t, 1000.0, v.Summary.Subtotal)
	require.Equal(t, 200.0, v.Summary.Savings)
	require.Equal(t, 100.0, v.Summary.Shipping)
	require.Equal(t, 1100.0, v.Summary.Total)
}

func TestGet_ServesCachedView(t *testing.T) {
	api := fake.New()
	api.SeedCart(testToken, []models.CartItem{
		{ID: "l1", ProductID: "p1", Price: 1200, Quantity: 2},
	})
	s := newService(t, api)
	ctx := context.Background()

	v1, err := s.Refresh(ctx, testUser, testToken)
	require.NoError(t, err)
	require.Equal(t, 0.0, v1.Summary.Shipping)

	// Меняем корзину на бэкенде мимо сервиса: Get обязан отдать старый снимок.
	api.SeedCart(testToken, nil)
	v2, err := s.Get(ctx, testUser, testToken)
	require.NoError(t, err)
	require.Len(t, v2.Items, 2)

	// После инвалидации Get перечитывает с бэкенда.
	require.NoError(t, s.Invalidate(ctx, testUser))
	v3, err := s.Get(ctx, testUser, testToken)
	require.NoError(t, err)
	require.Empty(t, v3.Items)
	require.Equal(t, 0.0, v3.Summary.Subtotal)
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	api := fake.New()
	api.SeedCart(testToken, []models.CartItem{
		{ID: "l1", ProductID: "p1", Price: 300, Quantity: 2},
		{ID: "l2", ProductID: "p2", Price: 500, Quantity: 1},
	})
	s := newService(t, api)
	ctx := context.Background()

	v, err := s.UpdateQuantity(ctx, testUser, testToken, "p1", 3)
	require.NoError(t, err)
	require.Equal(t, 1400.0, v.Summary.Subtotal)

	v, err = s.UpdateQuantity(ctx, testUser, testToken, "p1", 0)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	require.Equal(t, "p2", v.Items[0].ProductID)

	_, err = s.UpdateQuantity(ctx, testUser, testToken, "", 1)
	require.Error(t, err)
}

func TestUpdating_MarkerClearedOnExit(t *testing.T) {
	api := fake.New()
	api.SeedCart(testToken, []models.CartItem{
		{ID: "l1", ProductID: "p1", Price: 300, Quantity: 1},
	})
	s := newService(t, api)
	ctx := context.Background()

	require.False(t, s.Updating(testUser, "p1"))
	_, err := s.UpdateQuantity(ctx, testUser, testToken, "p1", 2)
	require.NoError(t, err)
	require.False(t, s.Updating(testUser, "p1"))

	// Маркер снимается и на ошибочном пути.
	_, err = s.UpdateQuantity(ctx, testUser, testToken, "missing", 2)
	require.Error(t, err)
	require.False(t, s.Updating(testUser, "missing"))
}

// gateAPI задерживает GetCart, пока тест не откроет ворота.
type gateAPI struct {
	*fake.FakeClient
	calls atomic.Int32
	gate  chan struct{}
}

func (g *gateAPI) GetCart(ctx context.Context, token string) ([]models.CartItem, error) {
	g.calls.Add(1)
	<-g.gate
	return g.FakeClient.GetCart(ctx, token)
}

func TestRefresh_CoalescesConcurrentCalls(t *testing.T) {
	inner := fake.New()
	inner.SeedCart(testToken, []models.CartItem{
		{ID: "l1", ProductID: "p1", Price: 100, Quantity: 1},
	})
	api := &gateAPI{FakeClient: inner, gate: make(chan struct{})}
	s := newService(t, api)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Refresh(ctx, testUser, testToken)
			require.NoError(t, err)
			require.Len(t, v.Items, 1)
		}()
	}

	// Даём горутинам сойтись на одном in-flight запросе.
	require.Eventually(t, func() bool { return api.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(api.gate)
	wg.Wait()

	require.EqualValues(t, 1, api.calls.Load())
}
