package lifecycle

import "errors"

// Domain errors for the lifecycle package.
var (
	// ErrClosed is returned by DeliveryQueue.Wait once the queue has been
	// killed and drained, and by Post after Kill.
	ErrClosed = errors.New("lifecycle: queue closed")

	// ErrAlreadyStarted is returned when Start is called on a loop that has
	// already been started. Loops are single-use.
	ErrAlreadyStarted = errors.New("lifecycle: loop already started")

	// ErrStartAborted wraps a BeforeLoop failure.
	ErrStartAborted = errors.New("lifecycle: loop start aborted")
)
