package wifi

import "errors"

// Domain errors for the wifi package.
var (
	// ErrInvalidAddress is returned when a target is not an IPv4 or IPv6
	// literal of acceptable length.
	ErrInvalidAddress = errors.New("wifi: invalid target address")

	// ErrNoSession is returned when a device loop is started without an
	// established heartbeat session.
	ErrNoSession = errors.New("wifi: no heartbeat session")

	// ErrSessionFailed is returned when the heartbeat session cannot be
	// established.
	ErrSessionFailed = errors.New("wifi: heartbeat session failed")

	// ErrStopping is returned when a connection is attempted after the
	// supervisor started shutting down.
	ErrStopping = errors.New("wifi: supervisor stopping")
)
