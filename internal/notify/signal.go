package notify

import "context"

// Signal is a binary event between one or more setters and a single waiter.
// Setting an already set signal is a no-op, so any number of Notify calls
// between two Waits collapse into one wake-up.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a signal in the reset (blocked) state.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify sets the signal. It never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Block resets the signal. It never blocks.
func (s *Signal) Block() {
	select {
	case <-s.ch:
	default:
	}
}

// IsSet reports whether a Notify is pending.
func (s *Signal) IsSet() bool {
	return len(s.ch) == 1
}

// Wait blocks until the signal is set or ctx is done. A successful Wait
// resets the signal.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
