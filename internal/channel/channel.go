// Package channel holds the interfaces published snapshots are fanned out
// through, and Latest, a channel that keeps only the newest value.
package channel

// Receiver is the consuming end.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender is what a publisher writes to. Send must not block.
type Sender[T any] interface {
	Send(T)
}

// Channel combines both ends.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// SenderFunc adapts a function to Sender.
type SenderFunc[T any] func(T)

// Send calls f(v).
func (f SenderFunc[T]) Send(v T) {
	f(v)
}
