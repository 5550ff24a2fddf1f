package transport

import (
	"context"
	"sync"
)

// inbox is the receiving half shared by the adapters. Producers may run on
// any goroutine; the channel is closed exactly once and never written to
// afterwards.
type inbox struct {
	ch   chan Message
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newInbox(buffer int) *inbox {
	return &inbox{
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

// deliver queues m, blocking while the buffer is full. It reports false if
// the inbox closed or ctx ended first.
func (b *inbox) deliver(ctx context.Context, m Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- m:
		return true
	case <-b.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// close unblocks pending producers before closing the channel.
func (b *inbox) close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}

func (b *inbox) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
