package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/craftline/storefront/internal/cache/rediscache"
	"github.com/craftline/storefront/internal/integrations/shopapi/fake"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(fake.New(), rediscache.New(mr.Addr()), time.Hour)
}

func TestLoginAndCurrent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sid, user, err := m.Login(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, sid)
	require.Equal(t, "alice@example.com", user.Email)

	s, err := m.Current(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, user, s.User)
	require.NotEmpty(t, s.Token)

	tok, err := m.Token(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, s.Token, tok)
}

func TestLoginValidation(t *testing.T) {
	m := newManager(t)
	_, _, err := m.Login(context.Background(), "", "secret")
	require.Error(t, err)
}

func TestCurrent_UnknownSID(t *testing.T) {
	m := newManager(t)
	_, err := m.Current(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNoSession)

	_, err = m.Current(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestLogout(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sid, _, err := m.Login(ctx, "bob@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx, sid))
	_, err = m.Current(ctx, sid)
	require.ErrorIs(t, err, ErrNoSession)

	// повторный logout — no-op
	require.NoError(t, m.Logout(ctx, sid))
}
