package store

import (
	"context"
	"testing"
	"time"

	"campus-eats-api/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(context.Background(), Options{Addr: mr.Addr(), Timeout: time.Second}, logging.Nop())
	t.Cleanup(func() { s.Close() })
	require.True(t, s.Health().Available())
	return s, mr
}

func TestRedisStoreBasicOperations(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	n, err := s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Expire(ctx, "counter", 70*time.Second))
	assert.Equal(t, 70*time.Second, mr.TTL("counter"))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.SetWithTTL(ctx, "cache:menu", []byte(`[1,2]`), time.Minute))
	val, err := s.Get(ctx, "cache:menu")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(val))

	require.NoError(t, s.Delete(ctx, "cache:menu"))
	_, err = s.Get(ctx, "cache:menu")
	assert.ErrorIs(t, err, ErrMiss)

	assert.True(t, s.Health().Available(), "a miss must not degrade the store")
}

func TestRedisStorePublishSubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "order_updates:*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "order_updates:42", []byte(`{"order_id":42}`)))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "order_updates:42", msg.Channel)
		assert.Equal(t, `{"order_id":42}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, sub.Close())
	assert.Eventually(t, func() bool {
		_, open := <-sub.Messages()
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisStoreFailureFlipsHealthAndReconnects(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	down := s.Health().Down()

	mr.Close()

	_, err := s.Incr(ctx, "counter")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, s.Health().Available())

	select {
	case <-down:
	default:
		t.Fatal("down channel not closed")
	}

	// short-circuits without touching the network
	assert.ErrorIs(t, s.Publish(ctx, "menu_updates", []byte("x")), ErrUnavailable)
	_, err = s.Subscribe(ctx, "menu_updates")
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, mr.Restart())
	require.NoError(t, s.Reconnect(ctx))
	assert.True(t, s.Health().Available())

	n, err := s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStoreUnreachableAtStartup(t *testing.T) {
	s := NewRedisStore(context.Background(), Options{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond}, logging.Nop())
	defer s.Close()

	assert.False(t, s.Health().Available())
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHealthTransitions(t *testing.T) {
	h := NewHealth(true)
	first := h.Down()

	assert.True(t, h.MarkDown())
	assert.False(t, h.MarkDown())
	<-first

	assert.True(t, h.MarkUp())
	assert.False(t, h.MarkUp())
	select {
	case <-h.Down():
		t.Fatal("fresh down channel must be open")
	default:
	}
}
