// Package wifi supervises network-attached devices reached by direct address.
//
// A DirectSupervisor keeps at most one live Device per configured target. It
// runs three kinds of goroutine:
//
//   - the reconnect loop, which tries to connect on its first iteration and
//     then every poll interval (or immediately on Wake) while disconnected
//   - one heartbeat loop per Device, answering the peer's pings
//   - the reaper, which tears dying devices down
//
// # Teardown
//
// A device never destroys itself. When its heartbeat fails, or when its
// owner asks it to go away, Kill hands the device to the reaper through a
// lifecycle.DeliveryQueue:
//
//	heartbeat fails ─▶ AfterLoop ─▶ Kill ─▶ reaper queue
//	                                            │
//	                          RemoveChild ◀─────┘
//	                          connected = false
//	                          deconstruct: stop loop, close session,
//	                                       delete from multiplexer
//
// Kill takes the device's self-reference exactly once, so however many
// goroutines call it concurrently the device reaches the reaper once and is
// deconstructed once. deconstruct waits for the heartbeat loop to exit, so it
// only ever runs on the reaper goroutine.
//
// # Shutdown
//
// DirectSupervisor.Close stops the reconnect loop, kills every child and
// waits for the reaper to drain them, then closes the reaper queue and joins
// the reaper. Closing the queue any earlier could drop a dying device.
package wifi
