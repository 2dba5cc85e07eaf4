// Package ingest moves order-book snapshots from venue transports into
// the shared book store: one ingestor and one coalescer per
// (venue, symbol) stream.
package ingest

import (
	"sync"

	"github.com/arbwatch/arbwatch/internal/models"
)

// queueCapacity bounds each per-stream queue. Two slots are enough: the
// coalescer only ever wants the newest snapshot.
const queueCapacity = 2

// Queue is a bounded per-stream buffer with drop-oldest overflow. Drops
// are counted; the coalescer treats them the same as window coalescing.
type Queue struct {
	mu      sync.Mutex
	items   []*models.OrderBook
	notify  chan struct{}
	dropped int64
}

// NewQueue builds an empty stream queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push installs a snapshot, evicting the oldest when full. It returns
// true when an eviction happened.
func (q *Queue) Push(b *models.OrderBook) (evicted bool) {
	q.mu.Lock()
	if len(q.items) >= queueCapacity {
		q.items = q.items[1:]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, b)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// DrainNewest empties the queue and returns the newest snapshot, or nil.
func (q *Queue) DrainNewest() (*models.OrderBook, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil, 0
	}
	b := q.items[n-1]
	q.items = q.items[:0]
	return b, n
}

// Len is the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped is the lifetime eviction count.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Wait returns a channel that receives after the next Push.
func (q *Queue) Wait() <-chan struct{} {
	return q.notify
}
