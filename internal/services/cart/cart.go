package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/craftline/storefront/internal/cache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
)

// View — снимок корзины вместе с производной сводкой. Сводка никогда не
// хранится отдельно от строк: она пересчитывается при каждой сборке View.
type View struct {
	Items     []models.CartItem  `json:"items"`
	Summary   models.CartSummary `json:"summary"`
	FetchedAt time.Time          `json:"fetched_at"`
}

type Service struct {
	api     shopapi.Client
	cache   cache.BytesCache
	viewTTL time.Duration

	// Совмещение параллельных Refresh одного пользователя в один сетевой вызов.
	refresh singleflight.Group

	mu       sync.Mutex
	updating map[string]map[string]struct{} // userID -> productID -> busy
}

func New(api shopapi.Client, c cache.BytesCache, viewTTL time.Duration) *Service {
	return &Service{
		api:      api,
		cache:    c,
		viewTTL:  viewTTL,
		updating: map[string]map[string]struct{}{},
	}
}

// Refresh перечитывает корзину с бэкенда и перезаписывает кэшированный снимок.
// Параллельные вызовы для одного пользователя дают один запрос и общий результат.
func (s *Service) Refresh(ctx context.Context, userID, token string) (View, error) {
	v, err, _ := s.refresh.Do(userID, func() (any, error) {
		items, err := s.api.GetCart(ctx, token)
		if err != nil {
			// Прошлый снимок при ошибке не трогаем: пустая корзина и
			// недоступный бэкенд — разные состояния.
			return View{}, err
		}
		view := buildView(items)
		s.storeView(ctx, userID, view)
		return view, nil
	})
	if err != nil {
		return View{}, err
	}
	return v.(View), nil
}

// Get возвращает кэшированный снимок, при промахе — Refresh.
func (s *Service) Get(ctx context.Context, userID, token string) (View, error) {
	if v, ok := s.cachedView(ctx, userID); ok {
		return v, nil
	}
	return s.Refresh(ctx, userID, token)
}

// UpdateQuantity ставит количество строки. Ноль и меньше означает удаление —
// отдельной операции "удалить через количество" на бэкенде нет.
func (s *Service) UpdateQuantity(ctx context.Context, userID, token, productID string, quantity int) (View, error) {
	if productID == "" {
		return View{}, errors.New("productId is required")
	}
	if !s.markUpdating(userID, productID) {
		return View{}, errors.Errorf("product %s is already being updated", productID)
	}
	defer s.unmarkUpdating(userID, productID)

	var err error
	if quantity <= 0 {
		err = s.api.RemoveCartItem(ctx, token, productID)
	} else {
		err = s.api.UpdateCartItem(ctx, token, productID, quantity)
	}
	if err != nil {
		return View{}, err
	}
	return s.Refresh(ctx, userID, token)
}

// Remove удаляет строку из корзины.
func (s *Service) Remove(ctx context.Context, userID, token, productID string) (View, error) {
	return s.UpdateQuantity(ctx, userID, token, productID, 0)
}

// Updating — идёт ли сейчас мутация данной строки (для поэлементной блокировки UI).
func (s *Service) Updating(userID, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.updating[userID][productID]
	return ok
}

// UpdatingProducts — строки пользователя, находящиеся в мутации прямо сейчас.
func (s *Service) UpdatingProducts(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.updating[userID]))
	for p := range s.updating[userID] {
		out = append(out, p)
	}
	return out
}

// Invalidate сбрасывает кэшированный снимок. Вызывается из обработчика
// события cart.cleared: после оформления заказа корзина пуста на бэкенде.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, viewKey(userID))
}

func (s *Service) markUpdating(userID, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := s.updating[userID]
	if byUser == nil {
		byUser = map[string]struct{}{}
		s.updating[userID] = byUser
	}
	if _, busy := byUser[productID]; busy {
		return false
	}
	byUser[productID] = struct{}{}
	return true
}

func (s *Service) unmarkUpdating(userID, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.updating[userID], productID)
	if len(s.updating[userID]) == 0 {
		delete(s.updating, userID)
	}
}

func (s *Service) cachedView(ctx context.Context, userID string) (View, bool) {
	if s.cache == nil || s.viewTTL <= 0 {
		return View{}, false
	}
	b, ok, err := s.cache.Get(ctx, viewKey(userID))
	if err != nil || !ok {
		return View{}, false
	}
	var v View
	if json.Unmarshal(b, &v) != nil {
		return View{}, false
	}
	return v, true
}

func (s *Service) storeView(ctx context.Context, userID string, v View) {
	if s.cache == nil || s.viewTTL <= 0 {
		return
	}
	b, _ := json.Marshal(v)
	_ = s.cache.Set(ctx, viewKey(userID), b, s.viewTTL)
}

func buildView(items []models.CartItem) View {
	if items == nil {
		items = []models.CartItem{}
	}
	return View{
		Items:     items,
		Summary:   models.Summarize(items),
		FetchedAt: time.Now().UTC(),
	}
}

func viewKey(userID string) string {
	return "cart:" + userID + ":view"
}
