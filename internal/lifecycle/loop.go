package lifecycle

import (
	"fmt"
	"sync"
)

// Status represents the current state of a Loop.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// Entity is a component driven by a Loop.
//
// BeforeLoop runs once on the loop goroutine; a non-nil error aborts the
// start. LoopEvent runs repeatedly until it returns false, returns an error,
// panics, or a stop is requested. AfterLoop runs exactly once after the
// loop ends, whatever the reason. StopAction is called from Stop on the
// caller's goroutine and must unblock a LoopEvent that is waiting.
type Entity interface {
	BeforeLoop() error
	LoopEvent() (bool, error)
	AfterLoop()
	StopAction()
}

// Logger defines the logging interface for the loop runner.
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

// Loop runs an Entity on a dedicated goroutine.
type Loop struct {
	name   string
	entity Entity
	logger Logger

	mu            sync.Mutex
	status        Status
	stopRequested bool
	lastError     error

	stopOnce sync.Once
	done     chan struct{}
}

// NewLoop creates an idle loop for entity. name is used in log output only.
func NewLoop(name string, entity Entity) *Loop {
	return &Loop{
		name:   name,
		entity: entity,
		logger: noopLogger{},
		status: StatusIdle,
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Start launches the loop goroutine and waits for BeforeLoop to finish.
// If BeforeLoop fails the loop is already stopped (AfterLoop has run) and
// the error is returned wrapped in ErrStartAborted.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.status != StatusIdle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.status = StatusStarting
	l.mu.Unlock()

	started := make(chan error, 1)
	go l.run(started)

	if err := <-started; err != nil {
		<-l.done
		return fmt.Errorf("%w: %s: %w", ErrStartAborted, l.name, err)
	}
	return nil
}

func (l *Loop) run(started chan<- error) {
	defer close(l.done)
	defer l.finish()

	if err := l.callBefore(); err != nil {
		l.setError(err)
		started <- err
		return
	}

	l.mu.Lock()
	if l.status == StatusStarting {
		l.status = StatusRunning
	}
	l.mu.Unlock()
	started <- nil

	l.logger.Debug("loop running", "name", l.name)

	for !l.StopRequested() {
		more, err := l.callEvent()
		if err != nil {
			l.setError(err)
			l.logger.Debug("loop event failed", "name", l.name, "error", err)
			return
		}
		if !more {
			return
		}
	}
}

// finish runs AfterLoop and marks the loop stopped.
func (l *Loop) finish() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("panic in loop teardown", "name", l.name, "panic", r)
			}
		}()
		l.entity.AfterLoop()
	}()

	l.mu.Lock()
	l.status = StatusStopped
	l.mu.Unlock()
	l.logger.Debug("loop stopped", "name", l.name)
}

func (l *Loop) callBefore() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in BeforeLoop: %v", r)
		}
	}()
	return l.entity.BeforeLoop()
}

// callEvent runs one iteration. A panic ends the loop like an error does.
func (l *Loop) callEvent() (more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in loop event", "name", l.name, "panic", r)
			more, err = false, fmt.Errorf("panic in LoopEvent: %v", r)
		}
	}()
	return l.entity.LoopEvent()
}

// Stop requests the loop to end, calls StopAction once, and waits for the
// loop goroutine to exit. Stopping an idle loop marks it stopped without
// running anything. Safe to call more than once and from several
// goroutines, but never from inside the entity's own callbacks.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopRequested = true
	switch l.status {
	case StatusIdle:
		l.status = StatusStopped
		l.mu.Unlock()
		l.stopOnce.Do(func() { close(l.done) })
		return
	case StatusStarting, StatusRunning:
		l.status = StatusStopping
	case StatusStopped:
		l.mu.Unlock()
		<-l.done
		return
	}
	l.mu.Unlock()

	l.stopOnce.Do(l.entity.StopAction)
	<-l.done
}

// StopRequested reports whether Stop has been called.
func (l *Loop) StopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopRequested
}

// Status returns the current state of the loop.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Err returns the error that ended the loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Done returns a channel that is closed once the loop has fully stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) setError(err error) {
	l.mu.Lock()
	l.lastError = err
	l.mu.Unlock()
}
