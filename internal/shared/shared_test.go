package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestClassifyMatchesEveryKind(t *testing.T) {
	errBusy := Classify("stock: busy", ErrConflict, ErrValidation)
	wrapped := errors.Join(errors.New("outer"), errBusy)

	require.ErrorIs(t, wrapped, errBusy)
	require.ErrorIs(t, errBusy, ErrConflict)
	require.ErrorIs(t, errBusy, ErrValidation)
	require.NotErrorIs(t, errBusy, ErrNotFound)
	require.Equal(t, "stock: busy", errBusy.Error())
}

func TestActorMiddleware(t *testing.T) {
	var seen string
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "  front-desk ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "front-desk", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, SystemActor, seen)
}

func TestLockerSerialisesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(redislock.New(client), time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, OrderLockKey(7))
	require.NoError(t, err)
	require.True(t, mr.Exists("resort:order:7:lock"))

	_, err = locker.Acquire(ctx, OrderLockKey(7))
	require.ErrorIs(t, err, ErrLockBusy)
	require.ErrorIs(t, err, ErrConflict)

	other, err := locker.Acquire(ctx, OrderLockKey(8))
	require.NoError(t, err)
	other()

	release()
	again, err := locker.Acquire(ctx, OrderLockKey(7))
	require.NoError(t, err)
	again()
}

func TestNilLockerGrantsEverything(t *testing.T) {
	locker := NewLocker(nil, time.Second)
	require.Nil(t, locker)
	release, err := locker.Acquire(context.Background(), OrderLockKey(1))
	require.NoError(t, err)
	release()
}

func TestDependentEffectFailed(t *testing.T) {
	require.True(t, DependentEffect{Name: "order.invoice", Status: EffectFailed}.Failed())
	require.False(t, DependentEffect{Name: "order.invoice", Status: EffectSucceeded}.Failed())
}
