package pgcheckout

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		// Pending-контекст checkout-а: адрес/пинкод, переживающие редирект
		// на оплату. Ровно одна запись на пользователя.
		`
CREATE TABLE IF NOT EXISTS checkout_handoffs (
  user_id TEXT PRIMARY KEY,
  shipping_address TEXT NOT NULL,
  pincode TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Учёт платёжных сессий: уникальность session_id гарантирует
		// не больше одного create-order на сессию.
		`
CREATE TABLE IF NOT EXISTS consumed_sessions (
  session_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  state TEXT NOT NULL,
  order_id TEXT NULL,
  last_error TEXT NULL,
  claimed_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_consumed_sessions_user_id ON consumed_sessions(user_id)`,
		// Подписки воркера на обновления статуса доставки.
		`
CREATE TABLE IF NOT EXISTS order_watches (
  order_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  auth_token TEXT NOT NULL,
  order_status TEXT NOT NULL DEFAULT '',
  delivery_status TEXT NOT NULL DEFAULT '',
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_watches_next_check_at ON order_watches(next_check_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
