package pgcheckout

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/models"
)

// ErrNoHandoff — у пользователя нет pending-контекста checkout-а.
var ErrNoHandoff = errors.New("no pending checkout handoff")

// SaveHandoff пишет pending-контекст перед редиректом на оплату.
// Повторный Begin перезаписывает адрес (одна запись на пользователя).
func (s *Storage) SaveHandoff(ctx context.Context, userID, shippingAddress, pincode string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO checkout_handoffs (user_id, shipping_address, pincode, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (user_id)
DO UPDATE SET shipping_address = $2, pincode = $3, updated_at = $4
`, userID, shippingAddress, pincode, now)
	return errors.Wrap(err, "save handoff")
}

func (s *Storage) GetHandoff(ctx context.Context, userID string) (models.PendingCheckout, error) {
	var h models.PendingCheckout
	err := s.db.QueryRow(ctx, `
SELECT user_id, shipping_address, pincode, created_at, updated_at
FROM checkout_handoffs
WHERE user_id = $1
`, userID).Scan(&h.UserID, &h.ShippingAddress, &h.Pincode, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return models.PendingCheckout{}, ErrNoHandoff
		}
		return models.PendingCheckout{}, errors.Wrap(err, "get handoff")
	}
	return h, nil
}

// ClearHandoff обязан вызываться на каждом терминальном исходе checkout-а:
// "висящий" контекст переиспользует устаревший адрес в следующем заказе.
func (s *Storage) ClearHandoff(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM checkout_handoffs WHERE user_id = $1`, userID)
	return errors.Wrap(err, "clear handoff")
}
