package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnsupported) {
//	    // relay proxying is not available for this device kind
//	}
var (
	// ErrUnsupported is returned when a device kind cannot perform an
	// operation, such as legacy relay-style connection proxying.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrInvalidKind is returned when a connection kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid connection kind")
)
