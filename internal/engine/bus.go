package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/streambridge/internal/errors"
)

// ErrBusClosed is returned by Pop once the bus is closed and drained
var ErrBusClosed = errors.NewStd("bus closed")

// Bus delivers messages from streaming goroutines to a single consumer.
// Post never blocks: the queue is unbounded and guarded by a mutex.
type Bus struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
	closed bool
}

// NewBus creates an open bus
func NewBus() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// Post queues msg. It returns false when the bus is closed.
func (b *Bus) Post(msg Message) bool {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.queue = append(b.queue, msg)
	b.wake()
	return true
}

// wake signals the consumer; callers hold b.mu
func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a message is available, ctx is done, or the bus is
// closed and drained.
func (b *Bus) Pop(ctx context.Context) (Message, error) {
	for {
		if msg, ok, err := b.tryPop(); ok || err != nil {
			return msg, err
		}

		select {
		case <-b.notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (b *Bus) tryPop() (Message, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) > 0 {
		msg := b.queue[0]
		b.queue[0] = Message{}
		b.queue = b.queue[1:]
		return msg, true, nil
	}
	if b.closed {
		return Message{}, false, ErrBusClosed
	}
	return Message{}, false, nil
}

// TimedPopFiltered waits up to timeout for a message whose type is in mask.
// Messages that do not match are dropped.
func (b *Bus) TimedPopFiltered(timeout time.Duration, mask MessageType) (Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		msg, err := b.Pop(ctx)
		if err != nil {
			return Message{}, false
		}
		if msg.Type&mask != 0 {
			return msg, true
		}
	}
}

// Pending returns the number of queued messages
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush drops all queued messages
func (b *Bus) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.queue)
	b.queue = nil
}

// Close stops accepting messages. Queued messages can still be popped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.wake()
}
