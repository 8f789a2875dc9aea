package replication

import (
	"context"
	"sync"

	"github.com/RitoIssei/bot-mng-ns/internal/metrics"
)

// Queue is a FIFO of encoded records safe for many producers and consumers. With a positive
// capacity a full queue drops its oldest record to make room; capacity 0 means unbounded.
type Queue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	ready    chan struct{}
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, ready: make(chan struct{}, 1)}
}

// Push appends item without blocking and reports whether an older record was dropped.
func (q *Queue) Push(item []byte) (dropped bool) {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.items[0] = nil
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.ReplicationQueueDepth.Set(float64(depth))
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

// Pop blocks until a record is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		if item, ok := q.tryPop(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Queue) tryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	metrics.ReplicationQueueDepth.Set(float64(len(q.items)))
	if len(q.items) > 0 {
		// Wake another waiting consumer.
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return item, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
