package core

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection is the outbound side of a client transport.
// TrySend never blocks; the adapter owns the connection and closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
