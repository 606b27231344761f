package lifecycle

import "sync"

// DeliveryQueue is a blocking single-inbox queue with a permanent close.
//
// Post never blocks the producer. Wait blocks until an item is available and
// hands each posted item to exactly one waiter. After Kill, items already in
// the queue are still delivered; once it is empty every Wait returns
// ErrClosed, including calls made after Kill returned.
//
// The queue is unbounded: a dying device must always be able to hand itself
// over, whatever the reaper is doing.
type DeliveryQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// NewDeliveryQueue creates an empty, open queue.
func NewDeliveryQueue[T any]() *DeliveryQueue[T] {
	q := &DeliveryQueue[T]{
		items: make([]T, 0, 4),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Post enqueues item and wakes one waiter.
// Returns ErrClosed if the queue has been killed; the item is not queued.
func (q *DeliveryQueue[T]) Post(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Wait blocks until an item is available and returns it.
// Returns ErrClosed when the queue is killed and empty.
func (q *DeliveryQueue[T]) Wait() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			var zero T
			return zero, ErrClosed
		}
		q.cond.Wait()
	}

	item := q.items[0]

	// Release the slot so the queue does not keep a dequeued item alive.
	var zero T
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, nil
}

// Kill closes the queue and wakes all waiters. Safe to call more than once.
func (q *DeliveryQueue[T]) Kill() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Len returns the number of items waiting to be delivered.
func (q *DeliveryQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Kill has been called.
func (q *DeliveryQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
