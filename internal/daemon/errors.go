package daemon

import "errors"

// Domain errors for the daemon package.
var (
	// ErrUnknownTarget is returned when no supervisor watches the address.
	ErrUnknownTarget = errors.New("daemon: unknown target")

	// ErrDuplicateTarget is returned when a target is configured twice.
	ErrDuplicateTarget = errors.New("daemon: duplicate target")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("daemon: already started")

	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("daemon: closed")
)
