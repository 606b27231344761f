package history

import "errors"

// Domain errors for the history package.
var (
	// ErrNoOpenSession is returned by Close when the serial has no open session.
	ErrNoOpenSession = errors.New("history: no open session")

	// ErrInvalidSession is returned when a session lacks a serial.
	ErrInvalidSession = errors.New("history: invalid session")
)
