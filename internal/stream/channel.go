// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"sync"
	"time"
)

// Channel is the ordered, unbounded, multi-producer single-consumer event
// queue of one request. Producers never block on a slow consumer; the
// consumer blocks in Pop with a timeout.
//
// A Channel is exclusively owned by its request context and is closed when
// the registry disposes of the context. Pushes after Close are dropped.
type Channel struct {
	mu     sync.Mutex
	buf    []Event
	closed bool

	// notify wakes the single consumer. Capacity 1 is enough: the consumer
	// re-checks the buffer after every wakeup.
	notify chan struct{}
}

// NewChannel returns an empty open channel.
func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

// Push appends an event. It never blocks beyond the internal mutex and is
// a no-op on a closed channel.
func (c *Channel) Push(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, ev)
	c.mu.Unlock()

	eventsPushedTotal.WithLabelValues(string(ev.Kind())).Inc()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest buffered event. When the buffer is
// empty it waits up to timeout for a push, returning ErrPopTimeout on
// expiry, ctx.Err() if the consumer's context ends first, and
// ErrChannelClosed once the channel is closed and drained.
func (c *Channel) Pop(ctx context.Context, timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			ev := c.buf[0]
			c.buf = c.buf[1:]
			c.mu.Unlock()
			return ev, nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return nil, ErrChannelClosed
		}

		select {
		case <-c.notify:
			// Re-check the buffer.
		case <-timer.C:
			return nil, ErrPopTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the approximate number of buffered events. Diagnostic only.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Close marks the channel closed and wakes a waiting consumer. Buffered
// events remain readable; further pushes are dropped. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}
