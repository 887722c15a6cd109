package pgcheckout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/craftline/storefront/internal/models"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "storefront_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/storefront_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestHandoffs_SaveGetClear(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, err := st.GetHandoff(ctx, "u1")
	require.ErrorIs(t, err, ErrNoHandoff)

	require.NoError(t, st.SaveHandoff(ctx, "u1", "12 MG Road", "560001"))
	// Begin повторно — адрес перезаписывается
	require.NoError(t, st.SaveHandoff(ctx, "u1", "7 Brigade Road", "560025"))

	h, err := st.GetHandoff(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "7 Brigade Road", h.ShippingAddress)
	require.Equal(t, "560025", h.Pincode)

	require.NoError(t, st.ClearHandoff(ctx, "u1"))
	_, err = st.GetHandoff(ctx, "u1")
	require.ErrorIs(t, err, ErrNoHandoff)

	// повторная очистка — no-op
	require.NoError(t, st.ClearHandoff(ctx, "u1"))
}

func TestSessions_ClaimIsExclusive(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	claimed, existing, err := st.ClaimSession(ctx, "sess_123", "u1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.Nil(t, existing)

	// Второй claim того же session_id обязан проиграть.
	claimed, existing, err = st.ClaimSession(ctx, "sess_123", "u1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.NotNil(t, existing)
	require.Equal(t, SessionStateClaimed, existing.State)

	require.NoError(t, st.MarkSessionCompleted(ctx, "sess_123", "987"))

	claimed, existing, err = st.ClaimSession(ctx, "sess_123", "u1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, SessionStateCompleted, existing.State)
	require.NotNil(t, existing.OrderID)
	require.Equal(t, "987", *existing.OrderID)
}

func TestSessions_ReleaseAllowsRetry(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	claimed, _, err := st.ClaimSession(ctx, "sess_retry", "u1")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, st.ReleaseSession(ctx, "sess_retry"))

	claimed, _, err = st.ClaimSession(ctx, "sess_retry", "u1")
	require.NoError(t, err)
	require.True(t, claimed)

	// failed-сессия не освобождается
	require.NoError(t, st.MarkSessionFailed(ctx, "sess_retry", "order create rejected"))
	require.NoError(t, st.ReleaseSession(ctx, "sess_retry"))

	claimed, existing, err := st.ClaimSession(ctx, "sess_retry", "u1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, SessionStateFailed, existing.State)
	require.NotNil(t, existing.LastError)
	require.Equal(t, "order create rejected", *existing.LastError)
}

func TestWatches_ClaimDueAndLease(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.EnrollOrderWatch(ctx, "o1", "u1", "tok-1", time.Now().UTC().Add(-time.Minute)))
	require.NoError(t, st.EnrollOrderWatch(ctx, "o2", "u1", "tok-1", time.Now().UTC().Add(time.Hour)))

	now := time.Now().UTC()
	lease := 10 * time.Second
	due, err := st.ClaimDueWatches(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "o1", due[0].OrderID)
	require.WithinDuration(t, now.Add(lease), due[0].NextCheckAt, 2*time.Second)

	// пока действует lease, строка не due
	due, err = st.ClaimDueWatches(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Empty(t, due)

	err = st.ApplyWatchUpdate(ctx, WatchUpdate{
		OrderID:        "o1",
		CheckedAt:      now,
		OrderStatus:    "CONFIRMED",
		DeliveryStatus: models.DeliveryStatusShipped,
		NextCheckAt:    now.Add(30 * time.Second),
	})
	require.NoError(t, err)

	w, err := st.GetWatch(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Equal(t, models.DeliveryStatusShipped, w.DeliveryStatus)
	require.EqualValues(t, 0, w.CheckFailCount)
	require.NotNil(t, w.LastCheckedAt)
}

func TestWatches_TerminalStatusNotClaimed(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.EnrollOrderWatch(ctx, "o1", "u1", "tok-1", time.Now().UTC().Add(-time.Minute)))

	now := time.Now().UTC()
	err := st.ApplyWatchUpdate(ctx, WatchUpdate{
		OrderID:        "o1",
		CheckedAt:      now,
		OrderStatus:    "DELIVERED",
		DeliveryStatus: models.DeliveryStatusDelivered,
		NextCheckAt:    now.Add(-time.Second),
	})
	require.NoError(t, err)

	due, err := st.ClaimDueWatches(ctx, now.Add(time.Minute), 10, time.Second)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestWatches_ErrorIncrementsFailCount(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.EnrollOrderWatch(ctx, "o1", "u1", "tok-1", time.Now().UTC()))

	now := time.Now().UTC()
	e := "shop api http 502"
	require.NoError(t, st.ApplyWatchUpdate(ctx, WatchUpdate{
		OrderID: "o1", CheckedAt: now, NextCheckAt: now.Add(5 * time.Minute), Error: &e,
	}))
	require.NoError(t, st.ApplyWatchUpdate(ctx, WatchUpdate{
		OrderID: "o1", CheckedAt: now, NextCheckAt: now.Add(15 * time.Minute), Error: &e,
	}))

	w, err := st.GetWatch(ctx, "o1")
	require.NoError(t, err)
	require.EqualValues(t, 2, w.CheckFailCount)
	require.NotNil(t, w.LastError)
	require.Equal(t, e, *w.LastError)

	// успешная проверка сбрасывает счётчик
	require.NoError(t, st.ApplyWatchUpdate(ctx, WatchUpdate{
		OrderID: "o1", CheckedAt: now, DeliveryStatus: models.DeliveryStatusInTransit, NextCheckAt: now.Add(30 * time.Second),
	}))
	w, err = st.GetWatch(ctx, "o1")
	require.NoError(t, err)
	require.EqualValues(t, 0, w.CheckFailCount)
	require.Nil(t, w.LastError)
}
