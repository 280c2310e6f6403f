// Package channel provides the bounded FIFO queue connecting the gossip
// workers. It differs from a buffered Go channel in two ways the workers
// rely on: TryDrain removes everything buffered in one call, and Len makes
// emptiness observable, which tests assert on.
package channel

import (
	"sync"
)

// Channel is a bounded multi-producer FIFO. Send blocks while the queue is
// full; consumers poll with TryDrain. There is no blocking receive: the
// workers must interleave queue polling with exit-flag polling.
type Channel[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	buffer   []T
	capacity int
}

// New returns a channel holding at most capacity items.
func New[T any](capacity int) *Channel[T] {
	c := &Channel[T]{
		capacity: capacity,
	}
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Send appends item, blocking while the queue is full.
func (c *Channel[T]) Send(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.buffer) >= c.capacity {
		c.notFull.Wait()
	}
	c.buffer = append(c.buffer, item)
}

// TrySend appends item without blocking. It reports whether the item was
// accepted.
func (c *Channel[T]) TrySend(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) >= c.capacity {
		return false
	}
	c.buffer = append(c.buffer, item)
	return true
}

// TryDrain removes and returns everything currently buffered, or nil when the
// queue is empty.
func (c *Channel[T]) TryDrain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) == 0 {
		return nil
	}
	out := c.buffer
	c.buffer = make([]T, 0, c.capacity)
	c.notFull.Broadcast()
	return out
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}
