package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// StreamOptions configures a RedisStream.
type StreamOptions struct {
	Stream string
	Group  string
	// Block is how long XREADGROUP waits on an empty stream.
	Block time.Duration
	// ReclaimIdle, when positive, lets consumers take over entries that sat
	// unacknowledged in another consumer for at least this long.
	ReclaimIdle time.Duration
}

// RedisStream carries messages over a Redis Stream with a consumer group.
// Entries stay pending until acknowledged, which gives at-least-once delivery.
type RedisStream struct {
	client redis.UniversalClient
	opts   StreamOptions
	logger *zap.Logger
}

// NewRedisStream builds the channel. Call EnsureGroup before consuming.
func NewRedisStream(client redis.UniversalClient, opts StreamOptions, logger *zap.Logger) *RedisStream {
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	return &RedisStream{client: client, opts: opts, logger: logger}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.opts.Stream, s.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", s.opts.Group, err)
	}
	return nil
}

// Publish appends payload to the stream.
func (s *RedisStream) Publish(ctx context.Context, payload []byte) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.opts.Stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Err()
}

// NewConsumer returns a consumer reading as name within the group. Names
// should be stable across restarts so a consumer recovers its own pending entries.
func (s *RedisStream) NewConsumer(name string) Consumer {
	return &streamConsumer{stream: s, name: name, cursor: "0"}
}

type streamConsumer struct {
	stream *RedisStream
	name   string

	mu          sync.Mutex
	cursor      string
	drained     bool
	lastReclaim time.Time
}

func (c *streamConsumer) Receive(ctx context.Context) (*Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries this consumer received before a restart are replayed first. The
	// cursor moves past each one so an entry that fails again is not retried
	// in a tight loop.
	if !c.drained {
		d, err := c.read(ctx, c.cursor, -1)
		if err != nil {
			return nil, err
		}
		if d != nil {
			c.cursor = d.ID
			return d, nil
		}
		c.drained = true
	}

	if idle := c.stream.opts.ReclaimIdle; idle > 0 && time.Since(c.lastReclaim) >= idle {
		c.lastReclaim = time.Now()
		d, err := c.reclaim(ctx, idle)
		if err != nil {
			c.stream.logger.Warn("reclaim pending entries failed", zap.String("consumer", c.name), zap.Error(err))
		} else if d != nil {
			return d, nil
		}
	}

	return c.read(ctx, ">", c.stream.opts.Block)
}

func (c *streamConsumer) Ack(ctx context.Context, d *Delivery) error {
	return c.stream.client.XAck(ctx, c.stream.opts.Stream, c.stream.opts.Group, d.ID).Err()
}

func (c *streamConsumer) read(ctx context.Context, id string, block time.Duration) (*Delivery, error) {
	streams, err := c.stream.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.stream.opts.Group,
		Consumer: c.name,
		Streams:  []string{c.stream.opts.Stream, id},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	for _, st := range streams {
		for _, msg := range st.Messages {
			return toDelivery(msg), nil
		}
	}
	return nil, nil
}

func (c *streamConsumer) reclaim(ctx context.Context, idle time.Duration) (*Delivery, error) {
	msgs, _, err := c.stream.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream.opts.Stream,
		Group:    c.stream.opts.Group,
		Consumer: c.name,
		MinIdle:  idle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return toDelivery(msgs[0]), nil
}

// toDelivery tolerates entries trimmed from the stream, which come back with
// no values; the consumer sees an empty payload.
func toDelivery(msg redis.XMessage) *Delivery {
	d := &Delivery{ID: msg.ID}
	if raw, ok := msg.Values[payloadField].(string); ok {
		d.Payload = []byte(raw)
	}
	return d
}
