package events

import (
	"sync"
	"sync/atomic"
)

// DefaultSinkBuffer is the per-sink queue length used when Subscribe is
// given a non-positive buffer.
const DefaultSinkBuffer = 256

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink consumes events on its own goroutine.
type Sink interface {
	Handle(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Handle calls f(ev).
func (f SinkFunc) Handle(ev Event) { f(ev) }

// Bus fans events out to sinks. Emit never blocks: each sink has a bounded
// queue and events that do not fit are dropped and counted.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	wg     sync.WaitGroup

	logger Logger
}

type subscriber struct {
	name    string
	sink    Sink
	ch      chan Event
	once    sync.Once
	dropped atomic.Uint64
}

// NewBus creates a Bus with no sinks.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[*subscriber]struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Subscribe starts delivering events to sink. The returned function stops
// delivery; it waits for the sink to finish the event in hand and is safe
// to call more than once. Subscribing to a closed bus returns a no-op.
func (b *Bus) Subscribe(name string, sink Sink, buffer int) (unsubscribe func()) {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	sub := &subscriber{name: name, sink: sink, ch: make(chan Event, buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer b.wg.Done()
		defer close(done)
		b.pump(sub)
	}()

	return func() {
		b.mu.Lock()
		_, ok := b.subs[sub]
		delete(b.subs, sub)
		b.mu.Unlock()
		if ok {
			sub.stop()
		}
		<-done
	}
}

// Emit queues ev for every sink.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			n := sub.dropped.Add(1)
			// Log the first drop and then every 100th.
			if n == 1 || n%100 == 0 {
				b.logger.Warn("event sink full, dropping events",
					"sink", sub.name,
					"kind", ev.Kind,
					"dropped", n,
				)
			}
		}
	}
}

// Dropped returns how many events each sink has dropped.
func (b *Bus) Dropped() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.subs))
	for sub := range b.subs {
		out[sub.name] += sub.dropped.Load()
	}
	return out
}

// SinkCount returns the number of subscribed sinks.
func (b *Bus) SinkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops accepting events, lets every sink drain its queue and waits
// for all sink goroutines to return.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*subscriber]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
	b.wg.Wait()
}

func (b *Bus) pump(sub *subscriber) {
	for ev := range sub.ch {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event sink panic recovered",
				"sink", sub.name,
				"kind", ev.Kind,
				"panic", r,
			)
		}
	}()
	sub.sink.Handle(ev)
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.ch) })
}
