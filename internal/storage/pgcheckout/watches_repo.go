package pgcheckout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/models"
)

type OrderWatch struct {
	OrderID        string
	UserID         string
	AuthToken      string
	OrderStatus    string
	DeliveryStatus string
	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type WatchUpdate struct {
	OrderID   string
	CheckedAt time.Time

	OrderStatus    string
	DeliveryStatus string

	NextCheckAt time.Time

	Error *string
}

// EnrollOrderWatch подписывает заказ на периодическую проверку доставки.
func (s *Storage) EnrollOrderWatch(ctx context.Context, orderID, userID, authToken string, firstCheckAt time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO order_watches (order_id, user_id, auth_token, next_check_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (order_id)
DO UPDATE SET auth_token = $3, next_check_at = $4, updated_at = $5
`, orderID, userID, authToken, firstCheckAt.UTC(), now)
	return errors.Wrap(err, "enroll order watch")
}

// RefreshWatch — ручной refresh: заказ станет due немедленно.
func (s *Storage) RefreshWatch(ctx context.Context, orderID string) error {
	_, err := s.db.Exec(ctx, `UPDATE order_watches SET next_check_at = now(), updated_at = now() WHERE order_id = $1`, orderID)
	return errors.Wrap(err, "refresh watch")
}

// GetWatch возвращает nil, nil для незарегистрированного заказа.
func (s *Storage) GetWatch(ctx context.Context, orderID string) (*OrderWatch, error) {
	row := s.db.QueryRow(ctx, `
SELECT order_id, user_id, auth_token, order_status, delivery_status,
  last_checked_at, next_check_at, check_fail_count, last_error,
  created_at, updated_at
FROM order_watches
WHERE order_id = $1
`, orderID)

	w, err := scanWatch(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// ClaimDueWatches выбирает пачку заказов, готовых к проверке, и "бронирует" их,
// чтобы параллельный воркер не взял те же строки. SELECT ... FOR UPDATE SKIP LOCKED.
// Терминальные статусы доставки в выборку не попадают.
func (s *Storage) ClaimDueWatches(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*OrderWatch, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT order_id, user_id, auth_token, order_status, delivery_status,
  last_checked_at, next_check_at, check_fail_count, last_error,
  created_at, updated_at
FROM order_watches
WHERE next_check_at <= $1
  AND delivery_status NOT IN ($2, $3)
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.DeliveryStatusDelivered, models.DeliveryStatusReturned, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due watches")
	}

	var picked []*OrderWatch
	for rows.Next() {
		w, err := scanWatch(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		picked = append(picked, w)
	}
	if rows.Err() != nil {
		rows.Close()
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	rows.Close()

	leaseUntil := now.UTC().Add(lease)
	for _, w := range picked {
		_, err := tx.Exec(ctx, `UPDATE order_watches SET next_check_at = $2, updated_at = now() WHERE order_id = $1`, w.OrderID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease watch")
		}
		w.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) ApplyWatchUpdate(ctx context.Context, upd WatchUpdate) error {
	if upd.Error != nil && *upd.Error != "" {
		_, err := s.db.Exec(ctx, `
UPDATE order_watches
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE order_id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		return errors.Wrap(err, "update watch (error)")
	}

	_, err := s.db.Exec(ctx, `
UPDATE order_watches
SET
  order_status = $3,
  delivery_status = $4,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $5,
  updated_at = now()
WHERE order_id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), upd.OrderStatus, upd.DeliveryStatus, upd.NextCheckAt.UTC())
	return errors.Wrap(err, "update watch (ok)")
}

type scanFn func(dest ...any) error

func scanWatch(scan scanFn) (*OrderWatch, error) {
	var w OrderWatch
	var lastCheckedAt *time.Time
	var lastError *string
	if err := scan(
		&w.OrderID, &w.UserID, &w.AuthToken, &w.OrderStatus, &w.DeliveryStatus,
		&lastCheckedAt, &w.NextCheckAt, &w.CheckFailCount, &lastError,
		&w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan watch")
	}
	w.LastCheckedAt = lastCheckedAt
	w.LastError = lastError
	return &w, nil
}
