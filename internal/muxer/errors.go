package muxer

import "errors"

// Domain errors for the muxer package.
var (
	// ErrDuplicateDevice is returned when a device with the same serial is
	// already registered.
	ErrDuplicateDevice = errors.New("muxer: device already registered")

	// ErrStartFailed is returned when a device fails to start during
	// registration. Nothing is registered.
	ErrStartFailed = errors.New("muxer: device failed to start")

	// ErrNilDevice is returned when AddDevice is called with nil.
	ErrNilDevice = errors.New("muxer: nil device")
)
