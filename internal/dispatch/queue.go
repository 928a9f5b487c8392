// Package dispatch decouples trade matching from notification delivery: the
// poll loop appends rendered messages to an unbounded queue and a single
// consumer drains it under global and per-destination throttles, so a slow or
// rate-limited provider never stalls ingestion.
package dispatch

import (
	"context"
	"sync"

	"github.com/calweaver/whalebot/internal/domain"
)

// Item is one queued notification: a rendered message bound for a single
// destination, plus the trade context recorded on successful delivery.
type Item struct {
	ChatID string
	Text   string
	Trade  domain.AggregatedTrade
	Market domain.MarketMetadata
}

// Queue is an unbounded FIFO between the poll loop (producer) and the
// dispatcher's single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	closed bool
	signal chan struct{}
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends an item without blocking. It fails only after Close.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the oldest item. It blocks until an item is
// available, the queue is closed and drained, or the context ends. Items
// enqueued before Close remain poppable after it.
func (q *Queue) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Item{}, domain.ErrQueueClosed
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// Close marks the queue closed. Subsequent Enqueue calls fail; Pop keeps
// returning queued items until the backlog is drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the current backlog size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
