package core

// Frame is a raw encoded signaling payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the client-side view of a session-scoped signaling channel.
// Handlers registered with On run sequentially in arrival order.
type SignalChannel interface {
	Emit(msg Message) error
	On(event Event, h func(Message)) (unsubscribe func())
}
