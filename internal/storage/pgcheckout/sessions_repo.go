package pgcheckout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Состояния учтённой платёжной сессии.
const (
	SessionStateClaimed   = "CLAIMED"
	SessionStateCompleted = "COMPLETED"
	SessionStateFailed    = "FAILED"
)

type ConsumedSession struct {
	SessionID  string
	UserID     string
	State      string
	OrderID    *string
	LastError  *string
	ClaimedAt  time.Time
	FinishedAt *time.Time
}

// ClaimSession атомарно занимает session_id под создание заказа.
// claimed=false означает, что сессию уже обрабатывали (или обрабатывают):
// existing содержит её текущее состояние. Уникальный ключ session_id —
// единственный источник гарантии "не больше одного заказа на сессию".
func (s *Storage) ClaimSession(ctx context.Context, sessionID, userID string) (claimed bool, existing *ConsumedSession, err error) {
	now := time.Now().UTC()
	ct, err := s.db.Exec(ctx, `
INSERT INTO consumed_sessions (session_id, user_id, state, claimed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id) DO NOTHING
`, sessionID, userID, SessionStateClaimed, now)
	if err != nil {
		return false, nil, errors.Wrap(err, "claim session")
	}
	if ct.RowsAffected() == 1 {
		return true, nil, nil
	}

	cs, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, nil, err
	}
	return false, cs, nil
}

// ReleaseSession снимает claim, если заказ так и не создавался
// (верификация вернула не-"paid"): сессию можно будет обработать позже.
func (s *Storage) ReleaseSession(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `
DELETE FROM consumed_sessions WHERE session_id = $1 AND state = $2
`, sessionID, SessionStateClaimed)
	return errors.Wrap(err, "release session")
}

func (s *Storage) MarkSessionCompleted(ctx context.Context, sessionID, orderID string) error {
	_, err := s.db.Exec(ctx, `
UPDATE consumed_sessions
SET state = $2, order_id = $3, finished_at = now()
WHERE session_id = $1
`, sessionID, SessionStateCompleted, orderID)
	return errors.Wrap(err, "mark session completed")
}

// MarkSessionFailed фиксирует терминальную ошибку после оплаты: текст
// сохраняется дословно, повторная обработка сессии не разрешается.
func (s *Storage) MarkSessionFailed(ctx context.Context, sessionID, errText string) error {
	_, err := s.db.Exec(ctx, `
UPDATE consumed_sessions
SET state = $2, last_error = $3, finished_at = now()
WHERE session_id = $1
`, sessionID, SessionStateFailed, errText)
	return errors.Wrap(err, "mark session failed")
}

func (s *Storage) GetSession(ctx context.Context, sessionID string) (*ConsumedSession, error) {
	var cs ConsumedSession
	err := s.db.QueryRow(ctx, `
SELECT session_id, user_id, state, order_id, last_error, claimed_at, finished_at
FROM consumed_sessions
WHERE session_id = $1
`, sessionID).Scan(&cs.SessionID, &cs.UserID, &cs.State, &cs.OrderID, &cs.LastError, &cs.ClaimedAt, &cs.FinishedAt)
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return &cs, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
