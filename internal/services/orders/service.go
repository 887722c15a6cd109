package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/broker/messages"
	"github.com/craftline/storefront/internal/cache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
	"github.com/craftline/storefront/internal/storage/pgcheckout"
)

type Repository interface {
	GetWatch(ctx context.Context, orderID string) (*pgcheckout.OrderWatch, error)
	RefreshWatch(ctx context.Context, orderID string) error
	ApplyWatchUpdate(ctx context.Context, upd pgcheckout.WatchUpdate) error
}

// Step — одна позиция линейной шкалы доставки в прогрессе заказа.
type Step struct {
	Status  string `json:"status"`
	Reached bool   `json:"reached"`
	Current bool   `json:"current"`
}

// View — заказ вместе с отрисованным прогрессом доставки.
// RETURNED не ложится на шкалу: он отдаётся отдельным флагом,
// шаги при этом остаются в последнем линейном состоянии.
type View struct {
	Order    models.Order `json:"order"`
	Steps    []Step       `json:"steps"`
	Returned bool         `json:"returned"`
}

type Service struct {
	api   shopapi.Client
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration
}

func New(api shopapi.Client, repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{api: api, repo: repo, cache: c, ttl: ttl}
}

// ViewOrder отдаёт заказ с прогрессом. Снимок кэшируется на короткий TTL,
// чтобы перезагрузки страницы не били в бэкенд между проверками воркера.
func (s *Service) ViewOrder(ctx context.Context, token, orderID string) (View, error) {
	if orderID == "" {
		return View{}, errors.New("orderId is required")
	}

	if s.cache != nil && s.ttl > 0 {
		if b, ok, err := s.cache.Get(ctx, viewKey(orderID)); err == nil && ok {
			var v View
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}

	order, err := s.api.GetOrder(ctx, token, orderID)
	if err != nil {
		return View{}, err
	}
	v := buildView(order)

	if s.cache != nil && s.ttl > 0 {
		b, _ := json.Marshal(v)
		_ = s.cache.Set(ctx, viewKey(orderID), b, s.ttl)
	}
	return v, nil
}

// RefreshOrder просит воркер проверить заказ в ближайшем цикле
// и сбрасывает кэшированный снимок.
func (s *Service) RefreshOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("orderId is required")
	}
	if err := s.repo.RefreshWatch(ctx, orderID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, viewKey(orderID))
	}
	return nil
}

// WatchState — состояние наблюдения за заказом (для отладочной выдачи).
func (s *Service) WatchState(ctx context.Context, orderID string) (*pgcheckout.OrderWatch, error) {
	return s.repo.GetWatch(ctx, orderID)
}

// ApplyKafkaUpdate применяет результат проверки воркера: обновляет запись
// наблюдения и инвалидирует кэшированный снимок заказа.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.OrderUpdated) error {
	if msg.OrderID == "" {
		return errors.New("order_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: если воркер не послал next_check_at, ставим "через 30 секунд"
		msg.NextCheckAt = msg.CheckedAt.Add(30 * time.Second)
	}

	err := s.repo.ApplyWatchUpdate(ctx, pgcheckout.WatchUpdate{
		OrderID:        msg.OrderID,
		CheckedAt:      msg.CheckedAt,
		OrderStatus:    msg.OrderStatus,
		DeliveryStatus: msg.DeliveryStatus,
		NextCheckAt:    msg.NextCheckAt,
		Error:          msg.Error,
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, viewKey(msg.OrderID))
	}
	return nil
}

func buildView(order models.Order) View {
	v := View{Order: order}

	status := models.DeliveryStatusOrdered
	if order.DeliveryTracking != nil && order.DeliveryTracking.Status != "" {
		status = order.DeliveryTracking.Status
	}
	v.Returned = status == models.DeliveryStatusReturned

	idx, ok := models.DeliveryStatusIndex(status)
	if !ok {
		// RETURNED и неизвестные статусы: шкала остаётся на первом шаге.
		idx = 0
	}
	for i, st := range models.DeliveryStatuses() {
		v.Steps = append(v.Steps, Step{
			Status:  st,
			Reached: i <= idx,
			Current: i == idx && ok,
		})
	}
	return v
}

func viewKey(orderID string) string {
	return fmt.Sprintf("order:%s:view", orderID)
}
