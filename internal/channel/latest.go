package channel

import "sync"

// Latest is a capacity-1 channel whose Send never blocks: a value that has
// not been received yet is replaced by the newer one.
type Latest[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped uint64
}

// NewLatest creates a new overwrite-on-full channel.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ch: make(chan T, 1)}
}

// Send stores v, discarding any value still waiting to be received.
func (l *Latest[T]) Send(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
			l.dropped++
		default:
		}
	}
}

// Receive returns the receive-only channel
func (l *Latest[T]) Receive() <-chan T {
	return l.ch
}

// Len returns 1 if a value is waiting, 0 otherwise.
func (l *Latest[T]) Len() int {
	return len(l.ch)
}

// Dropped is the number of values overwritten before being received.
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the channel. Later sends are ignored.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}
