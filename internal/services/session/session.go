package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/cache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/models"
)

// ErrNoSession — сессии нет или она истекла, нужен повторный логин.
var ErrNoSession = errors.New("no session")

// Session — авторизованная сессия витрины. Bearer-токен бэкенда не
// покидает сервер: наружу уходит только непрозрачный sid.
type Session struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}

type Manager struct {
	api   shopapi.Client
	cache cache.BytesCache
	ttl   time.Duration
}

func New(api shopapi.Client, c cache.BytesCache, ttl time.Duration) *Manager {
	return &Manager{api: api, cache: c, ttl: ttl}
}

// Login обменивает учётные данные на токен бэкенда и заводит сессию.
func (m *Manager) Login(ctx context.Context, email, password string) (string, models.User, error) {
	if email == "" || password == "" {
		return "", models.User{}, errors.New("email and password are required")
	}

	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return "", models.User{}, err
	}

	sid, err := newSID()
	if err != nil {
		return "", models.User{}, err
	}

	s := Session{Token: res.Token, User: res.User, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(s)
	if err != nil {
		return "", models.User{}, errors.Wrap(err, "marshal session")
	}
	if err := m.cache.Set(ctx, sessionKey(sid), b, m.ttl); err != nil {
		return "", models.User{}, errors.Wrap(err, "store session")
	}
	return sid, res.User, nil
}

func (m *Manager) Current(ctx context.Context, sid string) (Session, error) {
	if sid == "" {
		return Session{}, ErrNoSession
	}
	b, ok, err := m.cache.Get(ctx, sessionKey(sid))
	if err != nil {
		return Session{}, errors.Wrap(err, "load session")
	}
	if !ok {
		return Session{}, ErrNoSession
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, errors.Wrap(err, "unmarshal session")
	}
	return s, nil
}

// Token — bearer-токен бэкенда для серверных вызовов от имени сессии.
func (m *Manager) Token(ctx context.Context, sid string) (string, error) {
	s, err := m.Current(ctx, sid)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Logout сбрасывает сессию. Отсутствующая сессия — не ошибка.
func (m *Manager) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return m.cache.Del(ctx, sessionKey(sid))
}

func newSID() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generate sid")
	}
	return hex.EncodeToString(b[:]), nil
}

func sessionKey(sid string) string {
	return "session:" + sid
}
