package core

// Frame is a raw encoded payload sent over a signaling transport.
type Frame []byte

// SessionID identifies one live connection. It is distinct from the
// participant identity minted for that connection.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend must not block: it either queues the frame or fails fast.
	TrySend(Frame) error
	Close()
}
