package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStream(t *testing.T) (*RedisStream, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStream(client, StreamOptions{
		Stream: "notifications:activation",
		Group:  "mailers",
		Block:  50 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, s.EnsureGroup(context.Background()))
	return s, mr
}

func TestRedisStreamEnsureGroupIdempotent(t *testing.T) {
	s, _ := newTestStream(t)
	assert.NoError(t, s.EnsureGroup(context.Background()))
}

func TestRedisStreamPublishReceiveAck(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStream(t)

	require.NoError(t, s.Publish(ctx, []byte(`{"email":"a@x.com"}`)))

	c := s.NewConsumer("worker-0")
	d, err := c.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, `{"email":"a@x.com"}`, string(d.Payload))

	require.NoError(t, c.Ack(ctx, d))

	entries, err := mr.Stream("notifications:activation")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	next, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRedisStreamRedeliversUnackedAfterRestart(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStream(t)
	require.NoError(t, s.Publish(ctx, []byte("one")))

	first, err := s.NewConsumer("worker-0").Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	restarted := s.NewConsumer("worker-0")
	again, err := restarted.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "one", string(again.Payload))

	require.NoError(t, restarted.Ack(ctx, again))

	none, err := s.NewConsumer("worker-0").Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRedisStreamConsumersShareGroup(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStream(t)
	require.NoError(t, s.Publish(ctx, []byte("one")))
	require.NoError(t, s.Publish(ctx, []byte("two")))

	a, err := s.NewConsumer("worker-0").Receive(ctx)
	require.NoError(t, err)
	b, err := s.NewConsumer("worker-1").Receive(ctx)
	require.NoError(t, err)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)
}
