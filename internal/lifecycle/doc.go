// Package lifecycle provides the concurrency primitives that netmuxd uses to
// start, stop and tear down long-running components.
//
// It contains three pieces:
//
//   - Event: a generation-counter wakeup primitive. Waiters compare against a
//     generation snapshot rather than a boolean flag, so a notification that
//     lands between "release my lock" and "start waiting" is never lost.
//   - DeliveryQueue: a blocking, closable single-inbox queue. Producers never
//     block; Kill wakes every waiter with ErrClosed once the queue is drained.
//   - Loop: the runner for an Entity (BeforeLoop, repeated LoopEvent,
//     AfterLoop, StopAction). Each Loop owns one goroutine.
//
// # Loop states
//
//	idle -> starting -> running -> stopping -> stopped
//	starting -> stopped            (BeforeLoop failed)
//
// AfterLoop runs exactly once for every loop that was started, including the
// case where BeforeLoop failed.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Loop.Stop must not be called
// from the loop's own goroutine (it waits for that goroutine to exit).
package lifecycle
