package events

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueClosed is returned by a closed MemoryQueue.
var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue is an in-process channel. Deliveries that are received but
// not acknowledged in time are put back on the queue by Requeue.
type MemoryQueue struct {
	ch      chan *Delivery
	poll    time.Duration
	seq     atomic.Uint64
	mu      sync.Mutex
	pending map[string]pendingDelivery
	acked   int
	closed  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type pendingDelivery struct {
	delivery   *Delivery
	receivedAt time.Time
}

// NewMemoryQueue builds a queue holding up to capacity undelivered messages.
func NewMemoryQueue(capacity int, poll time.Duration) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &MemoryQueue{
		ch:      make(chan *Delivery, capacity),
		poll:    poll,
		pending: make(map[string]pendingDelivery),
		closed:  make(chan struct{}),
		now:     time.Now,
	}
}

// Publish enqueues payload, waiting for room until ctx is done.
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	d := &Delivery{
		ID:      strconv.FormatUint(q.seq.Add(1), 10),
		Payload: append([]byte(nil), payload...),
	}
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- d:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewConsumer returns the queue itself; all consumers compete for messages.
func (q *MemoryQueue) NewConsumer(string) Consumer {
	return q
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(q.poll)
	defer timer.Stop()

	select {
	case d := <-q.ch:
		q.mu.Lock()
		q.pending[d.ID] = pendingDelivery{delivery: d, receivedAt: q.now()}
		q.mu.Unlock()
		return d, nil
	case <-timer.C:
		return nil, nil
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[d.ID]; ok {
		delete(q.pending, d.ID)
		q.acked++
	}
	return nil
}

// Requeue puts deliveries that have been pending for at least minIdle back
// on the queue and returns how many were moved.
func (q *MemoryQueue) Requeue(ctx context.Context, minIdle time.Duration) (int, error) {
	q.mu.Lock()
	now := q.now()
	deliveries := make([]*Delivery, 0, len(q.pending))
	for id, p := range q.pending {
		if now.Sub(p.receivedAt) < minIdle {
			continue
		}
		deliveries = append(deliveries, p.delivery)
		delete(q.pending, id)
	}
	q.mu.Unlock()

	for i, d := range deliveries {
		select {
		case q.ch <- d:
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(deliveries), nil
}

// RequeueEvery runs Requeue with minIdle on each interval tick until ctx is
// done or the queue is closed.
func (q *MemoryQueue) RequeueEvery(ctx context.Context, interval, minIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closed:
			return
		case <-ticker.C:
			if _, err := q.Requeue(ctx, minIdle); err != nil {
				return
			}
		}
	}
}

// Pending returns the number of received but unacknowledged deliveries.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Acked returns the number of acknowledged deliveries.
func (q *MemoryQueue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// Len returns the number of messages waiting to be received.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops the queue. Pending receives return ErrQueueClosed.
func (q *MemoryQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}
