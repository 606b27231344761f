package heartbeat

import "errors"

// Domain errors for the heartbeat package.
var (
	// ErrConnectFailed is returned when no address of the peer accepts a
	// heartbeat connection.
	ErrConnectFailed = errors.New("heartbeat: connection failed")

	// ErrNoAddress is returned when Establish is called without addresses.
	ErrNoAddress = errors.New("heartbeat: no address to connect to")

	// ErrTimeout is returned when no ping arrives within the receive timeout.
	ErrTimeout = errors.New("heartbeat: receive timed out")

	// ErrUnexpectedMessage is returned when the peer sends a command other
	// than a ping.
	ErrUnexpectedMessage = errors.New("heartbeat: unexpected message")

	// ErrPeerSleeping is returned when the peer announces it is going to
	// sleep and will stop answering.
	ErrPeerSleeping = errors.New("heartbeat: peer is sleeping")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("heartbeat: frame too large")

	// ErrSessionClosed is returned when the session or the peer connection
	// has been closed.
	ErrSessionClosed = errors.New("heartbeat: session closed")
)
