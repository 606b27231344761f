package device

import (
	"context"
	"sync"

	"github.com/nerrad567/netmuxd/internal/lifecycle"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the set of child devices owned by a manager.
//
// Membership is by identity: the same Device value is present at most once.
// Every insertion and removal bumps the change event so ShutdownChildren can
// wait for the set to drain without polling.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.Mutex
	children map[Device]struct{}
	changed  *lifecycle.Event
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		children: make(map[Device]struct{}),
		changed:  lifecycle.NewEvent(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// AddChild inserts dev. Adding a device that is already present is a no-op.
func (r *Registry) AddChild(dev Device) {
	r.mu.Lock()
	if _, ok := r.children[dev]; ok {
		r.mu.Unlock()
		return
	}
	r.children[dev] = struct{}{}
	r.mu.Unlock()

	r.changed.NotifyAll()
}

// RemoveChild deletes dev and wakes anyone waiting on membership changes.
func (r *Registry) RemoveChild(dev Device) {
	r.mu.Lock()
	delete(r.children, dev)
	r.mu.Unlock()

	r.changed.NotifyAll()
}

// HasChild reports whether dev is a member.
func (r *Registry) HasChild(dev Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.children[dev]
	return ok
}

// ChildCount returns the number of members.
func (r *Registry) ChildCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.children)
}

// Children returns a snapshot of the current members.
func (r *Registry) Children() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Generation returns the membership change counter.
func (r *Registry) Generation() uint64 {
	return r.changed.Generation()
}

// ShutdownChildren kills every member and blocks until the set is empty.
func (r *Registry) ShutdownChildren() {
	_ = r.ShutdownChildrenContext(context.Background()) //nolint:errcheck // background context never ends
}

// ShutdownChildrenContext is ShutdownChildren bounded by ctx.
//
// Each pass snapshots the members and the change generation under the lock,
// releases it, kills the members, then waits for the generation to move.
// Members still present on the next pass are killed again; Kill is
// idempotent so this only matters for devices that joined in between.
func (r *Registry) ShutdownChildrenContext(ctx context.Context) error {
	for pass := 0; ; pass++ {
		r.mu.Lock()
		if len(r.children) == 0 {
			r.mu.Unlock()
			return nil
		}
		members := r.snapshotLocked()
		gen := r.changed.Generation()
		r.mu.Unlock()

		if pass == 0 {
			r.logger.Debug("shutting down children", "count", len(members))
		}
		for _, dev := range members {
			dev.Kill()
		}

		if _, err := r.changed.WaitForGenerationContext(ctx, gen); err != nil {
			r.logger.Warn("child shutdown interrupted",
				"remaining", r.ChildCount(),
				"error", err,
			)
			return err
		}
	}
}

func (r *Registry) snapshotLocked() []Device {
	out := make([]Device, 0, len(r.children))
	for dev := range r.children {
		out = append(out, dev)
	}
	return out
}
