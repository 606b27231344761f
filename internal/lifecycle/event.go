package lifecycle

import (
	"context"
	"sync"
)

// Event is a generation-counter condition primitive.
//
// NotifyAll bumps the generation and wakes every waiter. WaitForGeneration(g)
// returns as soon as the generation differs from g. Because the comparison is
// against a snapshot, the following pattern cannot lose a wakeup:
//
//	mu.Lock()
//	g := ev.Generation()
//	... inspect state guarded by mu ...
//	mu.Unlock()
//	ev.WaitForGeneration(g) // returns even if NotifyAll ran before this line
//
// The zero value is ready to use.
type Event struct {
	mu  sync.Mutex
	gen uint64
	ch  chan struct{} // closed and replaced on every NotifyAll
}

// NewEvent creates an Event at generation zero.
func NewEvent() *Event {
	return &Event{}
}

// Generation returns the current generation.
func (e *Event) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// NotifyAll increments the generation and wakes all current waiters.
func (e *Event) NotifyAll() {
	e.mu.Lock()
	e.gen++
	if e.ch != nil {
		close(e.ch)
		e.ch = nil
	}
	e.mu.Unlock()
}

// WaitForGeneration blocks until the generation differs from g and returns
// the generation observed on wakeup.
func (e *Event) WaitForGeneration(g uint64) uint64 {
	gen, _ := e.WaitForGenerationContext(context.Background(), g) //nolint:errcheck // background context never ends
	return gen
}

// WaitForGenerationContext is WaitForGeneration bounded by ctx.
// It returns ctx.Err() if the context ends before the generation moves.
func (e *Event) WaitForGenerationContext(ctx context.Context, g uint64) (uint64, error) {
	for {
		e.mu.Lock()
		if e.gen != g {
			gen := e.gen
			e.mu.Unlock()
			return gen, nil
		}
		if e.ch == nil {
			e.ch = make(chan struct{})
		}
		wake := e.ch
		e.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return g, ctx.Err()
		}
	}
}
