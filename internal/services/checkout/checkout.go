package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/broker/messages"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
	"github.com/craftline/storefront/internal/storage/pgcheckout"
)

// Исходы возврата с оплаты. Один sessionID даёт ровно один заказ:
// повторный заход с тем же sessionID отвечает из сохранённого исхода.
const (
	OutcomeCompleted  = "COMPLETED"
	OutcomeCanceled   = "CANCELED"
	OutcomeNotPaid    = "NOT_PAID"
	OutcomeInProgress = "IN_PROGRESS"
	OutcomeFailed     = "FAILED"
)

type Outcome struct {
	State   string
	OrderID string
	Order   *models.Order
	// Message — текст ошибки бэкенда дословно (для FAILED).
	Message string
}

type Storage interface {
	SaveHandoff(ctx context.Context, userID, shippingAddress, pincode string) error
	GetHandoff(ctx context.Context, userID string) (models.PendingCheckout, error)
	ClearHandoff(ctx context.Context, userID string) error

	ClaimSession(ctx context.Context, sessionID, userID string) (claimed bool, existing *pgcheckout.ConsumedSession, err error)
	ReleaseSession(ctx context.Context, sessionID string) error
	MarkSessionCompleted(ctx context.Context, sessionID, orderID string) error
	MarkSessionFailed(ctx context.Context, sessionID, errText string) error

	EnrollOrderWatch(ctx context.Context, orderID, userID, authToken string, firstCheckAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type CartInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type Service struct {
	api   shopapi.Client
	store Storage
	pub   Publisher
	carts CartInvalidator
	log   *slog.Logger

	topicCartCleared string
}

func New(api shopapi.Client, store Storage, pub Publisher, carts CartInvalidator, topicCartCleared string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		api:              api,
		store:            store,
		pub:              pub,
		carts:            carts,
		log:              log,
		topicCartCleared: topicCartCleared,
	}
}

// SanitizePincode оставляет только цифры и обрезает до шести знаков.
func SanitizePincode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == 6 {
			break
		}
	}
	return b.String()
}

// Begin фиксирует адрес, сохраняет контекст на время редиректа и заводит
// платёжную сессию. Возвращает URL размещённой страницы оплаты.
func (s *Service) Begin(ctx context.Context, user models.User, token, address, pincode string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("shipping address is required")
	}
	pincode = SanitizePincode(pincode)
	if len(pincode) != 6 {
		return "", errors.New("pincode must be 6 digits")
	}

	items, err := s.api.GetCart(ctx, token)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", errors.New("cart is empty")
	}
	sum := models.Summarize(items)

	// Адрес в профиле — best effort: недоступность профиля не блокирует оплату,
	// контекст всё равно переживёт редирект в handoff-записи.
	if err := s.api.PutShippingAddress(ctx, token, shopapi.ShippingAddress{
		ShippingAddress: address,
		Pincode:         pincode,
	}); err != nil {
		s.log.Warn("save shipping address to profile failed", "user_id", user.ID, "err", err)
	}

	if err := s.store.SaveHandoff(ctx, user.ID, address, pincode); err != nil {
		return "", errors.Wrap(err, "save checkout handoff")
	}

	url, err := s.api.CreateCheckoutSession(ctx, token, shopapi.CheckoutSessionInput{
		Amount:        sum.Total,
		CustomerEmail: user.Email,
		CustomerName:  user.Name,
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// CompleteReturn обрабатывает возврат с платёжной страницы.
//
// Флагам из redirect URL доверия нет, кроме canceled=true: отмена коротко
// замыкается без единого сетевого вызова, контекст остаётся на месте.
// Для остальных исходов источник истины — server-side верификация сессии.
func (s *Service) CompleteReturn(ctx context.Context, userID, token, sessionID string, canceled bool) (Outcome, error) {
	if canceled {
		return Outcome{State: OutcomeCanceled}, nil
	}
	if sessionID == "" {
		return Outcome{}, errors.New("session_id is required")
	}

	claimed, existing, err := s.store.ClaimSession(ctx, sessionID, userID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "claim session")
	}
	if !claimed {
		return outcomeFromExisting(existing), nil
	}

	ps, err := s.api.VerifySession(ctx, token, sessionID)
	if err != nil {
		// Верификация не состоялась — сессию отпускаем, заход можно повторить.
		if relErr := s.store.ReleaseSession(ctx, sessionID); relErr != nil {
			s.log.Error("release session failed", "session_id", sessionID, "err", relErr)
		}
		return Outcome{}, err
	}
	if ps.Status != models.PaymentSessionPaid {
		if relErr := s.store.ReleaseSession(ctx, sessionID); relErr != nil {
			s.log.Error("release session failed", "session_id", sessionID, "err", relErr)
		}
		if ps.Status == models.PaymentSessionCanceled {
			return Outcome{State: OutcomeCanceled}, nil
		}
		return Outcome{State: OutcomeNotPaid}, nil
	}

	addr, pincode, err := s.resolveAddress(ctx, userID, token)
	if err != nil {
		if relErr := s.store.ReleaseSession(ctx, sessionID); relErr != nil {
			s.log.Error("release session failed", "session_id", sessionID, "err", relErr)
		}
		return Outcome{}, err
	}

	order, err := s.api.CreateOrder(ctx, token, shopapi.OrderInput{
		ShippingAddress: addr,
		Pincode:         pincode,
		PaymentMethod:   "card",
		PaymentIntentID: ps.PaymentIntentID,
	})
	if err != nil {
		// Оплата прошла, заказ не создался: исход терминальный, текст ошибки
		// сохраняем дословно — повтор с тем же sessionID ответит им же.
		if markErr := s.store.MarkSessionFailed(ctx, sessionID, err.Error()); markErr != nil {
			s.log.Error("mark session failed", "session_id", sessionID, "err", markErr)
		}
		return Outcome{State: OutcomeFailed, Message: err.Error()}, nil
	}

	if err := s.store.MarkSessionCompleted(ctx, sessionID, order.ID); err != nil {
		s.log.Error("mark session completed", "session_id", sessionID, "err", err)
	}
	if err := s.store.ClearHandoff(ctx, userID); err != nil {
		s.log.Error("clear checkout handoff", "user_id", userID, "err", err)
	}
	s.broadcastCartCleared(ctx, userID, order.ID)

	if err := s.store.EnrollOrderWatch(ctx, order.ID, userID, token, time.Now().UTC()); err != nil {
		s.log.Error("enroll order watch", "order_id", order.ID, "err", err)
	}

	return Outcome{State: OutcomeCompleted, OrderID: order.ID, Order: &order}, nil
}

// Pending — сохранённый контекст чекаута (адрес, переживший редирект).
func (s *Service) Pending(ctx context.Context, userID string) (models.PendingCheckout, error) {
	return s.store.GetHandoff(ctx, userID)
}

func outcomeFromExisting(existing *pgcheckout.ConsumedSession) Outcome {
	if existing == nil {
		return Outcome{State: OutcomeInProgress}
	}
	switch existing.State {
	case pgcheckout.SessionStateCompleted:
		out := Outcome{State: OutcomeCompleted}
		if existing.OrderID != nil {
			out.OrderID = *existing.OrderID
		}
		return out
	case pgcheckout.SessionStateFailed:
		out := Outcome{State: OutcomeFailed}
		if existing.LastError != nil {
			out.Message = *existing.LastError
		}
		return out
	default:
		return Outcome{State: OutcomeInProgress}
	}
}

func (s *Service) resolveAddress(ctx context.Context, userID, token string) (string, string, error) {
	h, err := s.store.GetHandoff(ctx, userID)
	if err == nil {
		return h.ShippingAddress, h.Pincode, nil
	}
	if !errors.Is(err, pgcheckout.ErrNoHandoff) {
		return "", "", errors.Wrap(err, "load checkout handoff")
	}
	// Handoff потерян (другой инстанс уже очистил или БД мигрировала) —
	// пробуем адрес из профиля на бэкенде.
	addr, err := s.api.GetShippingAddress(ctx, token)
	if err != nil {
		return "", "", err
	}
	if addr.ShippingAddress == "" || len(addr.Pincode) != 6 {
		return "", "", errors.New("no pending checkout context")
	}
	return addr.ShippingAddress, addr.Pincode, nil
}

func (s *Service) broadcastCartCleared(ctx context.Context, userID, orderID string) {
	if s.pub != nil {
		msg := messages.CartCleared{UserID: userID, OrderID: orderID, ClearedAt: time.Now().UTC()}
		b, _ := json.Marshal(msg)
		if err := s.pub.Publish(ctx, s.topicCartCleared, []byte(userID), b); err != nil {
			s.log.Error("publish cart.cleared", "user_id", userID, "err", err)
		}
	}
	if s.carts != nil {
		if err := s.carts.Invalidate(ctx, userID); err != nil {
			s.log.Error("invalidate cart view", "user_id", userID, "err", err)
		}
	}
}
